// Package tracing configures OpenTelemetry tracing for App Store Connect
// calls and batch items.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"

	"github.com/RaydowCharole/AppStoreIapScript/internal/config"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "appstore-iap"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Provider wraps the configured tracer provider with its shutdown hook.
type Provider struct {
	trace.TracerProvider
	shutdown ShutdownFunc
}

// Shutdown flushes pending spans. It is safe to call on a no-op provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup builds a tracer provider exporting over OTLP/gRPC and registers it
// globally. An empty endpoint yields a no-op provider.
func Setup(ctx context.Context, cfg config.TracingConfig, version string, log *slog.Logger) (*Provider, error) {
	if cfg.Endpoint == "" {
		return &Provider{TracerProvider: noop.NewTracerProvider()}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	tp := NewProvider(sdktrace.NewBatchSpanProcessor(exp, sdktrace.WithBatchTimeout(5*time.Second)), version)
	otel.SetTracerProvider(tp)

	log.Info("tracing enabled", "endpoint", cfg.Endpoint, "insecure", cfg.Insecure)
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}

// NewProvider builds an SDK tracer provider around sp, tagged with the
// service name and version.
func NewProvider(sp sdktrace.SpanProcessor, version string) *sdktrace.TracerProvider {
	res := resource.NewWithAttributes("",
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(res),
	)
}
