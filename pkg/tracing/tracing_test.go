package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("pos"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewProvider_ExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewProvider(context.Background(), DefaultConfig("pos"), exporter)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "checkout")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "checkout", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate     float64
		contains string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		s := Sampler(tt.rate)
		assert.Contains(t, s.Description(), tt.contains)
		var _ sdktrace.Sampler = s
	}
}
