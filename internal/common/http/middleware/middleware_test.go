package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codearena/internal/common/auth"
	"codearena/internal/common/cache"
	"codearena/internal/common/ratelimit"
	pkgerrors "codearena/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id"`
}

func performRequest(router http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, envelope, error) {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp envelope
	if rec.Body.Len() == 0 {
		return rec, resp, nil
	}
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp, err
}

type stubAuthenticator struct {
	identity auth.Identity
	err      error
}

func (s stubAuthenticator) Authenticate(context.Context, string) (auth.Identity, error) {
	return s.identity, s.err
}

func TestTraceContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TraceContextMiddleware())
	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = c.GetString(traceIDContextKey)
		c.Status(http.StatusOK)
	})

	rec, _, _ := performRequest(router, http.MethodGet, "/ping", map[string]string{traceIDHeader: "trace-1"})
	if seen != "trace-1" || rec.Header().Get(traceIDHeader) != "trace-1" {
		t.Fatalf("incoming trace id not propagated: ctx=%q header=%q", seen, rec.Header().Get(traceIDHeader))
	}

	rec, _, _ = performRequest(router, http.MethodGet, "/ping", nil)
	if seen == "" || rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated ids")
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := stubAuthenticator{identity: auth.Identity{UserID: 42, Role: auth.RoleUser}}
	denied := stubAuthenticator{err: pkgerrors.New(pkgerrors.TokenExpired)}

	tests := []struct {
		name       string
		auth       Authenticator
		policy     AuthPolicy
		header     string
		wantStatus int
		wantUser   int64
	}{
		{name: "optional anonymous", auth: ok, policy: AuthPolicy{Mode: AuthOptional}, wantStatus: http.StatusOK},
		{name: "optional with token", auth: ok, policy: AuthPolicy{Mode: AuthOptional}, header: "Bearer t", wantStatus: http.StatusOK, wantUser: 42},
		{name: "required missing", auth: stubAuthenticator{err: pkgerrors.New(pkgerrors.Unauthorized)}, policy: AuthPolicy{Mode: AuthRequired}, wantStatus: http.StatusUnauthorized},
		{name: "required expired", auth: denied, policy: AuthPolicy{Mode: AuthRequired}, header: "Bearer t", wantStatus: http.StatusUnauthorized},
		{name: "role mismatch", auth: ok, policy: AuthPolicy{Mode: AuthRequired, Roles: []string{auth.RoleAdmin}}, header: "Bearer t", wantStatus: http.StatusForbidden},
		{name: "no authenticator", auth: nil, policy: AuthPolicy{Mode: AuthRequired}, header: "Bearer t", wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(tt.auth, tt.policy))
			var user int64
			router.GET("/me", func(c *gin.Context) {
				user = CurrentUserID(c)
				c.Status(http.StatusOK)
			})
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec, _, err := performRequest(router, http.MethodGet, "/me", headers)
			if err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if user != tt.wantUser {
				t.Fatalf("unexpected user id: %d", user)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithConfig(cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache failed: %v", err)
	}
	t.Cleanup(func() { _ = redisCache.Close() })
	limiter := ratelimit.NewLimiter(redisCache, time.Minute, time.Second)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(userIDContextKey, int64(7))
		c.Next()
	})
	router.Use(RateLimitMiddleware(limiter, "submit", RateLimitPolicy{Window: time.Minute, UserMax: 2}))
	router.GET("/limited", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		rec, _, err := performRequest(router, http.MethodGet, "/limited", nil)
		if err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status on attempt %d: %d", i+1, rec.Code)
		}
	}
	rec, resp, err := performRequest(router, http.MethodGet, "/limited", nil)
	if err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if rec.Code != http.StatusTooManyRequests || resp.Code != int(pkgerrors.TooManyRequests) {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}
}

func TestRateLimitMiddlewareNilLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(nil, "route", RateLimitPolicy{IPMax: 1}))
	router.GET("/open", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		rec, _, _ := performRequest(router, http.MethodGet, "/open", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rec.Code)
		}
	}
}
