package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the core reads: the subject plus its roles.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTAuthorizer verifies HMAC-signed bearer tokens locally.
type JWTAuthorizer struct {
	secret      []byte
	defaultRole string
}

var _ Authorizer = (*JWTAuthorizer)(nil)

func NewJWTAuthorizer(secret string, defaultRole string) *JWTAuthorizer {
	return &JWTAuthorizer{secret: []byte(secret), defaultRole: defaultRole}
}

func (a *JWTAuthorizer) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (a *JWTAuthorizer) Validate(_ context.Context, token string) bool {
	_, err := a.parse(token)
	return err == nil
}

func (a *JWTAuthorizer) HasRole(_ context.Context, token, role string) bool {
	claims, err := a.parse(token)
	if err != nil {
		return false
	}
	for _, r := range claims.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a *JWTAuthorizer) IsAuthorized(ctx context.Context, token string) bool {
	return a.HasRole(ctx, token, a.defaultRole)
}

func (a *JWTAuthorizer) IsAuthorizedForOperation(ctx context.Context, token, operation string) bool {
	return a.HasRole(ctx, token, requiredRole(operation, a.defaultRole))
}
