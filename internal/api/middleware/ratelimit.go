package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/gatewarden/gatewarden/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// WebhookRateLimit applies per terminal IP to webhook ingress.
	WebhookRateLimit = RateLimitConfig{
		RequestLimit: 600,
		WindowLength: time.Minute,
	}

	// SyncRateLimit applies to sync start and reconcile preview, which hit the device.
	SyncRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to the rest of the operator API.
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP limits by client address. Run chi's RealIP first behind a proxy.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg)),
	)
}

// RateLimitByOperator limits by authenticated operator, falling back to client IP.
func RateLimitByOperator(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByOperatorOrIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg)),
	)
}

func keyByOperatorOrIP(r *http.Request) (string, error) {
	if id := GetOperatorID(r.Context()); id != "" {
		return "operator:" + id, nil
	}
	return httprate.KeyByRealIP(r)
}

func rateLimitExceededHandler(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := int(cfg.WindowLength.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(RequestIDFrom(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path
		// httprate does not expose the window reset, so advertise the full window.
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		problem.Write(w)
	}
}
