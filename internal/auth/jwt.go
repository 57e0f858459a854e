// Package auth verifies operator bearer tokens. Tokens are issued by the identity provider
// in front of the operator console; this service only checks them.
package auth

import (
	"errors"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Operator roles.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Predefined token errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
)

// Claims are the claims of an operator access token.
type Claims struct {
	jwt.RegisteredClaims

	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Operator is the authenticated caller.
type Operator struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole reports whether the operator holds role. Admins hold every role.
func (o *Operator) HasRole(role string) bool {
	if o == nil {
		return false
	}
	return slices.Contains(o.Roles, role) || slices.Contains(o.Roles, RoleAdmin)
}

// VerifierConfig holds configuration for the token verifier.
type VerifierConfig struct {
	// SigningKey is the shared HS256 secret.
	SigningKey string

	// Issuer is the expected issuer claim.
	Issuer string

	// Audience is the expected audience claim.
	Audience string
}

// Verifier validates operator access tokens.
type Verifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewVerifier creates a new Verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// Verify validates a token and returns the operator it was issued to.
func (v *Verifier) Verify(tokenString string) (*Operator, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}

	return &Operator{ID: claims.Subject, Name: claims.Name, Roles: claims.Roles}, nil
}
