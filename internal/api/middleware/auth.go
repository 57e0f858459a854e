package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/auth"
)

type operatorKey struct{}

// Auth validates the operator bearer token. Browsers cannot set headers on a WebSocket
// handshake, so upgrade requests may carry the token in the access_token query parameter.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, detail := bearerToken(r)
			if tokenString == "" {
				writeUnauthorized(w, r, detail)
				return
			}

			operator, err := verifier.Verify(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey{}, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated operators lacking role with 403. It must run after Auth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operator := GetOperator(r.Context())
			if operator == nil {
				writeUnauthorized(w, r, "authentication required")
				return
			}
			if !operator.HasRole(role) {
				problem := models.NewForbidden(RequestIDFrom(r.Context()), "role "+role+" required")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, ""
			}
		}
		return "", "missing authorization header"
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized is local to avoid an import cycle with the response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(RequestIDFrom(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetOperator returns the authenticated operator, or nil.
func GetOperator(ctx context.Context) *auth.Operator {
	op, _ := ctx.Value(operatorKey{}).(*auth.Operator)
	return op
}

// GetOperatorID returns the authenticated operator's subject, or "".
func GetOperatorID(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return op.ID
	}
	return ""
}
