// Package authtest mints operator tokens for handler and middleware tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/auth"
)

// Test verifier settings shared by tests that mint tokens with Token.
const (
	SigningKey = "test-secret-key-for-testing-only"
	Issuer     = "https://id.gatewarden.example"
	Audience   = "gatewarden-api"
)

// Verifier returns a verifier accepting tokens minted by Token.
func Verifier() *auth.Verifier {
	return auth.NewVerifier(auth.VerifierConfig{SigningKey: SigningKey, Issuer: Issuer, Audience: Audience})
}

// Token signs a one-hour token for subject holding roles.
func Token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	return sign(t, subject, time.Now().Add(time.Hour), roles)
}

// ExpiredToken signs a token that expired a minute ago.
func ExpiredToken(t *testing.T, subject string) string {
	t.Helper()
	return sign(t, subject, time.Now().Add(-time.Minute), []string{auth.RoleOperator})
}

func sign(t *testing.T, subject string, expiresAt time.Time, roles []string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(SigningKey))
	require.NoError(t, err)
	return token
}
