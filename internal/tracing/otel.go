package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/54b3r/docrag-go/internal/version"
)

// SetupOTel installs a global OTLP/gRPC tracer provider when
// OTEL_EXPORTER_OTLP_ENDPOINT is set. The exporter reads the standard
// OTEL_EXPORTER_OTLP_* variables itself. OTEL_SAMPLE_RATIO (default 1.0)
// sets the head sampling ratio for root spans.
//
// The returned shutdown function flushes pending spans. When tracing is not
// configured ok is false and shutdown is a no-op.
func SetupOTel(ctx context.Context, serviceName string) (shutdown func(context.Context) error, ok bool, err error) {
	noop := func(context.Context) error { return nil }
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return noop, false, nil
	}

	ratio := 1.0
	if v := os.Getenv("OTEL_SAMPLE_RATIO"); v != "" {
		r, perr := strconv.ParseFloat(v, 64)
		if perr != nil || r < 0 || r > 1 {
			return noop, false, fmt.Errorf("tracing: OTEL_SAMPLE_RATIO must be in [0,1], got %q", v)
		}
		ratio = r
	}

	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return noop, false, fmt.Errorf("tracing: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version.Version),
		),
	)
	if err != nil {
		return noop, false, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, true, nil
}
