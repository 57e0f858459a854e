package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger writes one line per request once the handler returns. Route parameters naming a
// device or vendor are lifted into their own fields.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			evt := log.Info()
			switch {
			case sw.statusCode >= http.StatusInternalServerError:
				evt = log.Warn()
			case r.URL.Path == "/api/ops/health" || r.URL.Path == "/api/ops/ready":
				evt = log.Debug()
			}

			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
			}
			if id := chi.URLParam(r, "deviceId"); id != "" {
				evt = evt.Str("device_id", id)
			}
			if v := chi.URLParam(r, "vendor"); v != "" {
				evt = evt.Str("vendor", v)
			}

			evt.
				Str("request_id", RequestIDFrom(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", sw.statusCode).
				Int64("bytes", sw.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}
