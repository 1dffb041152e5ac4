package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

const instrumentationName = "github.com/Mindburn-Labs/sdnguard"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC, e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batching delay
	Enabled        bool
	Insecure       bool // plaintext gRPC, for local collectors
}

// DefaultConfig returns a disabled configuration with local defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "sdnguard",
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider manages OpenTelemetry trace and metric providers.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// New creates a provider. With Enabled false it returns a no-op provider
// without contacting any collector.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		p.logger.DebugContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp, err := p.newTraceProvider(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	mp, err := p.newMetricProvider(ctx, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if err := p.attach(tp, mp); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)
	return p, nil
}

// attach binds the provider to tp and mp and creates the RED instruments.
func (p *Provider) attach(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) error {
	p.tracerProvider = tp
	p.meterProvider = mp
	p.tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(p.config.ServiceVersion))
	p.meter = mp.Meter(instrumentationName, metric.WithInstrumentationVersion(p.config.ServiceVersion))
	if err := p.initREDMetrics(); err != nil {
		return fmt.Errorf("failed to init RED metrics: %w", err)
	}
	return nil
}

func (p *Provider) newTraceProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	), nil
}

func (p *Provider) newMetricProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	), nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	p.requestCounter, err = p.meter.Int64Counter("sdnguard.requests.total",
		metric.WithDescription("Turns and actions started"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return err
	}
	p.errorCounter, err = p.meter.Int64Counter("sdnguard.errors.total",
		metric.WithDescription("Turns and actions that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("sdnguard.request.duration",
		metric.WithDescription("Turn and action duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 60),
	)
	if err != nil {
		return err
	}
	p.activeOperations, err = p.meter.Int64UpDownCounter("sdnguard.operations.active",
		metric.WithDescription("Turns and actions in flight"),
		metric.WithUnit("{operation}"),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// StartSpan starts a new span with the given name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordError counts err, labelled with its fault kind.
func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.errorCounter == nil {
		return
	}
	all := append(append([]attribute.KeyValue(nil), attrs...), attribute.String("error.kind", string(faults.KindOf(err))))
	p.errorCounter.Add(ctx, 1, metric.WithAttributes(all...))
}

// TrackOperation starts a span and RED bookkeeping for name and returns the
// function that ends them.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	opAttrs := metric.WithAttributes(append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)...)

	if p.activeOperations != nil {
		p.activeOperations.Add(ctx, 1, opAttrs)
	}
	if p.requestCounter != nil {
		p.requestCounter.Add(ctx, 1, opAttrs)
	}

	return ctx, func(err error) {
		if p.activeOperations != nil {
			p.activeOperations.Add(ctx, -1, opAttrs)
		}
		if p.durationHist != nil {
			p.durationHist.Record(ctx, time.Since(start).Seconds(), opAttrs)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.RecordError(ctx, err, append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)...)
		}
		span.End()
	}
}
