package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/auth"
)

const (
	testKey      = "test-secret-key-for-testing-only"
	testIssuer   = "https://id.gatewarden.example"
	testAudience = "gatewarden-api"
)

func newVerifier() *auth.Verifier {
	return auth.NewVerifier(auth.VerifierConfig{SigningKey: testKey, Issuer: testIssuer, Audience: testAudience})
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims auth.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(expiresAt time.Time) auth.Claims {
	return auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "op_42",
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name:  "Night shift",
		Roles: []string{auth.RoleOperator},
	}
}

func TestVerifier_Verify(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(testKey), validClaims(time.Now().Add(time.Hour)))

	op, err := newVerifier().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "op_42", op.ID)
	assert.Equal(t, "Night shift", op.Name)
	assert.True(t, op.HasRole(auth.RoleOperator))
	assert.False(t, op.HasRole(auth.RoleAdmin))
}

func TestVerifier_Expired(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(testKey), validClaims(time.Now().Add(-time.Minute)))

	_, err := newVerifier().Verify(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestVerifier_Invalid(t *testing.T) {
	wrongAudience := validClaims(time.Now().Add(time.Hour))
	wrongAudience.Audience = jwt.ClaimStrings{"someone-else"}

	noSubject := validClaims(time.Now().Add(time.Hour))
	noSubject.Subject = ""

	noExpiry := validClaims(time.Now())
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"wrong key", sign(t, jwt.SigningMethodHS256, []byte("other-key"), validClaims(time.Now().Add(time.Hour)))},
		{"wrong audience", sign(t, jwt.SigningMethodHS256, []byte(testKey), wrongAudience)},
		{"missing subject", sign(t, jwt.SigningMethodHS256, []byte(testKey), noSubject)},
		{"missing expiry", sign(t, jwt.SigningMethodHS256, []byte(testKey), noExpiry)},
		{"unsigned", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims(time.Now().Add(time.Hour)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newVerifier().Verify(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestOperator_AdminHoldsEveryRole(t *testing.T) {
	op := &auth.Operator{ID: "op_1", Roles: []string{auth.RoleAdmin}}
	assert.True(t, op.HasRole(auth.RoleOperator))

	var nobody *auth.Operator
	assert.False(t, nobody.HasRole(auth.RoleOperator))
}
