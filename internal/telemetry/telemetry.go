// Package telemetry provides OpenTelemetry instrumentation for fleetop.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/fleetop/internal/config"
	"github.com/yairfalse/fleetop/internal/fleet"
	"github.com/yairfalse/fleetop/pkg/instance"
)

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	pusher         *push.Pusher

	// Metrics
	polls        metric.Int64Counter
	operations   metric.Int64Counter
	waitDuration metric.Float64Histogram
}

var _ fleet.Recorder = (*Provider)(nil)

// NewProvider creates a new telemetry provider. Exporters are only created
// for the backends that are configured.
func NewProvider(ctx context.Context, cfg config.OTELConfig, prom config.PrometheusConfig) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, prom, res); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("fleetop")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, prom config.PrometheusConfig, res *resource.Resource) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	if prom.Pushgateway != "" {
		registry := prometheus.NewRegistry()
		exp, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
		p.pusher = push.New(prom.Pushgateway, prom.Job).Gatherer(registry)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("fleetop")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.polls, err = p.meter.Int64Counter(
		"fleetop.polls",
		metric.WithDescription("Number of instance state reads made while waiting for convergence"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return fmt.Errorf("create polls: %w", err)
	}

	p.operations, err = p.meter.Int64Counter(
		"fleetop.operations",
		metric.WithDescription("Number of lifecycle operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("create operations: %w", err)
	}

	p.waitDuration, err = p.meter.Float64Histogram(
		"fleetop.wait.duration",
		metric.WithDescription("Time from issuing an operation to its outcome"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create wait_duration: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordPoll records one state read.
func (p *Provider) RecordPoll(ctx context.Context, target instance.State, attempt int) {
	p.polls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", string(target)),
	))
}

// RecordOutcome records how an operation ended and how long it took.
func (p *Provider) RecordOutcome(ctx context.Context, op instance.Operation, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("outcome", outcome),
	)
	p.operations.Add(ctx, 1, attrs)
	p.waitDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// Shutdown pushes pending metrics if a Pushgateway is configured, then
// flushes and shuts down the providers. A failed push does not prevent the
// providers from shutting down.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.pusher != nil {
		if err := p.pusher.PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter: %w", err))
		}
	}
	return errors.Join(errs...)
}
