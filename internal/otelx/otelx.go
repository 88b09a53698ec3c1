// Package otelx installs the global OpenTelemetry tracer provider and
// propagator. Spans are exported over OTLP/gRPC to a local collector.
package otelx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/onterra/onterra-web/internal/log"
)

var ErrInvalidOptions = errors.New("otelx: invalid options")

const (
	DefaultNamespace   = "onterra"
	DefaultDialTimeout = 3 * time.Second
)

type Options struct {
	Enabled   bool
	Endpoint  string // host:port of the collector
	Insecure  bool
	Sample    float64 // root sampling ratio, 0..1; parents decide for children
	Service   string
	Component string
	Version   string

	Namespace   string
	DialTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
}

func (o Options) validate() error {
	if o.Endpoint == "" {
		return fmt.Errorf("%w: Endpoint is required when tracing is enabled", ErrInvalidOptions)
	}
	if o.Sample < 0 || o.Sample > 1 {
		return fmt.Errorf("%w: Sample must be within 0..1 (got %g)", ErrInvalidOptions, o.Sample)
	}
	return nil
}

type shutdownFunc = func(context.Context) error

// Init installs the propagator and tracer provider. Disabled tracing still
// gets an SDK provider without an exporter so trace ids exist for logs and
// response headers. The returned shutdown flushes pending spans.
func Init(ctx context.Context, o Options) (shutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	o.setDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
		otlptracegrpc.WithTimeout(10 * time.Second),
	}
	if o.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}

	// the exporter has no deadline of its own
	dialCtx, cancel := context.WithTimeout(ctx, o.DialTimeout)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", o.Endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newResource(ctx context.Context, o Options) *resource.Resource {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.Service),
			semconv.ServiceNamespaceKey.String(o.Namespace),
			semconv.ServiceVersionKey.String(o.Version),
			attribute.String("service.component", o.Component),
		),
	)
	// a partial resource is still usable
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		log.FromContext(ctx).Warn(ctx, "otel resource detection incomplete", "err", err)
	}
	if res == nil {
		return resource.Default()
	}
	return res
}
