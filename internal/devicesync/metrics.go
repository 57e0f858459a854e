package devicesync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gatewarden/gatewarden/internal/device"
)

const meterName = "github.com/gatewarden/gatewarden/internal/devicesync"

// Metrics holds the sync engine instruments. A nil *Metrics records nothing.
type Metrics struct {
	itemsProcessed metric.Int64Counter
	runsTotal      metric.Int64Counter
	fetchDuration  metric.Float64Histogram
}

// NewMetrics creates the sync engine instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	itemsProcessed, err := meter.Int64Counter(
		"devicesync.items.processed",
		metric.WithDescription("Identity items processed by sync runs"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	runsTotal, err := meter.Int64Counter(
		"devicesync.runs.total",
		metric.WithDescription("Finished sync runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"devicesync.fetch.duration",
		metric.WithDescription("Duration of full directory listings in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		itemsProcessed: itemsProcessed,
		runsTotal:      runsTotal,
		fetchDuration:  fetchDuration,
	}, nil
}

func (m *Metrics) recordItem(ctx context.Context, mode Mode, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	m.itemsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) recordRun(ctx context.Context, mode Mode, state State) {
	if m == nil {
		return
	}
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("state", string(state)),
	))
}

func (m *Metrics) recordFetch(ctx context.Context, brand device.Brand, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.fetchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("brand", string(brand)),
		attribute.Bool("ok", ok),
	))
}
