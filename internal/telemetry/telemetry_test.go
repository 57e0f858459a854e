package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/gatewarden/gatewarden/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  "gatewarden-test",
		OTLPEndpoint: "localhost:4317",
		Enabled:      false,
	})

	require.NoError(t, err)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NotNil(t, otel.GetTextMapPropagator())
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "1m")
	t.Setenv("APP_ENV", "production")

	cfg := telemetry.ConfigFromEnv("gatewarden-api", "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "gatewarden-api", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "production", cfg.Environment)
	assert.InDelta(t, 0.25, cfg.SampleRatio, 1e-9)
	assert.Equal(t, time.Minute, cfg.ExportInterval)
}

func TestConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
	t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "soon")
	t.Setenv("APP_ENV", "")

	cfg := telemetry.ConfigFromEnv("gatewarden-worker", "dev")

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, 15*time.Second, cfg.ExportInterval)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		desc := telemetry.Sampler(tt.ratio).Description()
		assert.Contains(t, desc, "ParentBased")
		assert.Contains(t, desc, tt.want)
	}
}

func TestProvider_ShutdownStopsSDKProviders(t *testing.T) {
	p := &telemetry.Provider{TracerProvider: sdktrace.NewTracerProvider()}
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, (&telemetry.Provider{}).Shutdown(context.Background()))
}
