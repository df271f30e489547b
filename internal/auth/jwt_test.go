package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, roles []string, expiry time.Duration) string {
	t.Helper()
	claims := &Claims{
		UserID: "user-1",
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidate(t *testing.T) {
	a := NewJWTAuthorizer(testSecret, "user")
	ctx := context.Background()

	assert.True(t, a.Validate(ctx, signToken(t, testSecret, nil, time.Hour)))
	assert.False(t, a.Validate(ctx, "not-a-jwt"))
	assert.False(t, a.Validate(ctx, signToken(t, "wrong-secret-wrong-secret-wrong!", nil, time.Hour)))
	assert.False(t, a.Validate(ctx, signToken(t, testSecret, nil, -time.Hour)), "expired token")
}

func TestHasRole(t *testing.T) {
	a := NewJWTAuthorizer(testSecret, "user")
	ctx := context.Background()
	token := signToken(t, testSecret, []string{"user", "internal"}, time.Hour)

	assert.True(t, a.HasRole(ctx, token, "internal"))
	assert.True(t, a.HasRole(ctx, token, "user"))
	assert.False(t, a.HasRole(ctx, token, "admin"))
}

func TestIsAuthorized_UsesDefaultRole(t *testing.T) {
	a := NewJWTAuthorizer(testSecret, "user")
	ctx := context.Background()

	assert.True(t, a.IsAuthorized(ctx, signToken(t, testSecret, []string{"user"}, time.Hour)))
	assert.False(t, a.IsAuthorized(ctx, signToken(t, testSecret, []string{"guest"}, time.Hour)))
}

func TestIsAuthorizedForOperation(t *testing.T) {
	a := NewJWTAuthorizer(testSecret, "user")
	ctx := context.Background()

	userToken := signToken(t, testSecret, []string{"user"}, time.Hour)
	internalToken := signToken(t, testSecret, []string{"internal"}, time.Hour)

	// Mutating operations require the internal role.
	assert.False(t, a.IsAuthorizedForOperation(ctx, userToken, "delete"))
	assert.True(t, a.IsAuthorizedForOperation(ctx, internalToken, "bulk-index"))

	// Everything else falls back to the default role.
	assert.True(t, a.IsAuthorizedForOperation(ctx, userToken, "search"))
	assert.False(t, a.IsAuthorizedForOperation(ctx, internalToken, "search"))
}
