package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/api/models"
)

// Recovery converts a handler panic into a 500 problem. http.ErrAbortHandler is re-raised
// so net/http still aborts the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch {
				case rec == nil:
					return
				case rec == http.ErrAbortHandler: //nolint:errorlint // sentinel panic value
					panic(rec)
				}

				id := RequestIDFrom(r.Context())
				log.Error().
					Str("request_id", id).
					Str("method", r.Method).
					Str("route", routePattern(r)).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				problem := models.NewInternalError(id, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
