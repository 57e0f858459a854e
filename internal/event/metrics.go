package event

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/gatewarden/gatewarden/internal/event"

// Metrics holds the distributor instruments. A nil *Metrics records nothing.
type Metrics struct {
	published  metric.Int64Counter
	duplicates metric.Int64Counter
	dropped    metric.Int64Counter
}

// NewMetrics creates the distributor instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	published, err := meter.Int64Counter(
		"events.published",
		metric.WithDescription("New canonical events accepted into the history"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	duplicates, err := meter.Int64Counter(
		"events.duplicates",
		metric.WithDescription("Events dropped because their id was already held"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"events.subscriber.dropped",
		metric.WithDescription("Deliveries lost to full subscriber queues"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{published: published, duplicates: duplicates, dropped: dropped}, nil
}

func (m *Metrics) recordPublished(ctx context.Context, source Source, decision Decision) {
	if m == nil {
		return
	}
	m.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", string(source)),
		attribute.String("decision", string(decision)),
	))
}

func (m *Metrics) recordDuplicate(ctx context.Context, source Source) {
	if m == nil {
		return
	}
	m.duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}

func (m *Metrics) recordDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1)
}
