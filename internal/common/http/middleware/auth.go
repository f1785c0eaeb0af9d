package middleware

import (
	"context"
	"strings"

	"codearena/internal/common/auth"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (auth.Identity, error)
}

type AuthMode int

const (
	// AuthOptional attaches the identity when a valid token is present and lets anonymous callers through.
	AuthOptional AuthMode = iota
	AuthRequired
)

type AuthPolicy struct {
	Mode  AuthMode
	Roles []string
}

// AuthMiddleware validates bearer tokens and enforces role checks.
func AuthMiddleware(authenticator Authenticator, policy AuthPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" && policy.Mode == AuthOptional {
			c.Next()
			return
		}
		if authenticator == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth is not configured")
			return
		}

		identity, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if len(policy.Roles) > 0 && !hasRole(identity.Role, policy.Roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set(userIDContextKey, identity.UserID)
		c.Set(userRoleContextKey, identity.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, identity.UserID)
		ctx = context.WithValue(ctx, contextkey.UserRole, identity.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id, or 0 for anonymous callers.
func CurrentUserID(c *gin.Context) int64 {
	if value, ok := c.Get(userIDContextKey); ok {
		if id, ok := value.(int64); ok {
			return id
		}
	}
	return 0
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
