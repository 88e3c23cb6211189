package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupStdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{Tracing: TracingStdout, ServiceName: "feedrelay-test", Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "relay.session")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "relay.session")
	assert.Contains(t, buf.String(), "feedrelay-test")

	// second call is a no-op
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupNone(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Tracing: TracingNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{Tracing: "jaeger"})
	assert.Error(t, err)
}
