package telemetry_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/rai/order-reporting/internal/platform/telemetry"
)

func TestInit_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "order-reporting-test",
		Exporter:    "stdout",
		Writer:      &buf,
	}, logger)
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "sweep")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"sweep"`)
}

func TestInit_UnknownExporter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := telemetry.Init(context.Background(), telemetry.Config{Exporter: "zipkin"}, logger)
	assert.Error(t, err)
}
