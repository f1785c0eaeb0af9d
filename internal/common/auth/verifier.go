// Package auth verifies access tokens issued by the external identity service.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	pkgerrors "codearena/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	revokedKeyPrefix = "auth:revoked:"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Role   string
}

// Config holds token verification settings.
type Config struct {
	Secret string `yaml:"secret" validate:"required"`
	Issuer string `yaml:"issuer"`
}

// Verifier validates HS256 access tokens. Revoked tokens are looked up in the
// cache by the SHA-256 of the raw token, when a cache is configured.
type Verifier struct {
	secret  []byte
	issuer  string
	revoked cache.BasicOps
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewVerifier(cfg Config, revoked cache.BasicOps) *Verifier {
	return &Verifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer, revoked: revoked}
}

// Authenticate parses raw and returns the caller identity.
func (v *Verifier) Authenticate(ctx context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("missing bearer token")
	}
	claims, err := v.parse(raw)
	if err != nil {
		return Identity{}, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.revoked != nil {
		value, err := v.revoked.Get(ctx, revokedKeyPrefix+hashToken(raw))
		if err != nil {
			return Identity{}, pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "token revocation check failed")
		}
		if value != "" {
			return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid).WithMessage("token revoked")
		}
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: userID, Role: role}, nil
}

func (v *Verifier) parse(raw string) (*tokenClaims, error) {
	if len(v.secret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

// Issue signs an access token. The platform never logs users in itself; this
// exists for operators and tests.
func (v *Verifier) Issue(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role:      role,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// RevokedKey returns the cache key that marks raw as revoked.
func RevokedKey(raw string) string {
	return revokedKeyPrefix + hashToken(raw)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
