package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/gatewarden/gatewarden/internal/api/middleware"

// Metrics records HTTP traffic plus the two long-lived ingress paths: device webhooks and
// operator event streams. A nil *Metrics records nothing.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	size     metric.Int64Histogram
	webhooks metric.Int64Counter
	streams  metric.Int64UpDownCounter
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.duration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.requests, err = meter.Int64Counter("http.server.request.total",
		metric.WithDescription("HTTP server requests by route and status"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http.server.requests_in_flight",
		metric.WithDescription("HTTP requests being served"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.size, err = meter.Int64Histogram("http.server.response.size",
		metric.WithDescription("HTTP response body size"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.webhooks, err = meter.Int64Counter("gatewarden.webhook.received",
		metric.WithDescription("Device notifications received per vendor and outcome"), metric.WithUnit("{notification}")); err != nil {
		return nil, err
	}
	if m.streams, err = meter.Int64UpDownCounter("gatewarden.event_stream.open",
		metric.WithDescription("Operator event streams currently open"), metric.WithUnit("{stream}")); err != nil {
		return nil, err
	}
	return m, nil
}

// Middleware records one request, labelled with the chi route pattern rather than the path.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			byMethod := metric.WithAttributes(attribute.String("http.method", r.Method))

			m.inFlight.Add(ctx, 1, byMethod)
			defer m.inFlight.Add(ctx, -1, byMethod)

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			attrs := metric.WithAttributeSet(attribute.NewSet(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", routePattern(r)),
				attribute.String("http.status_code", strconv.Itoa(sw.statusCode)),
				attribute.Bool("error", sw.statusCode >= http.StatusBadRequest),
			))
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.requests.Add(ctx, 1, attrs)
			m.size.Record(ctx, sw.written, attrs)
		})
	}
}

// RecordWebhook counts one device notification. Outcome is "accepted", "duplicate" or
// "rejected".
func (m *Metrics) RecordWebhook(r *http.Request, vendor, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("webhook.vendor", vendor),
		attribute.String("webhook.outcome", outcome),
	))
}

// StreamOpened counts an operator event stream until the returned func is called.
func (m *Metrics) StreamOpened(ctx context.Context) (closed func()) {
	if m == nil {
		return func() {}
	}
	m.streams.Add(ctx, 1)
	return func() { m.streams.Add(context.WithoutCancel(ctx), -1) }
}

// routePattern returns the matched chi route, or the raw path outside a chi router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
