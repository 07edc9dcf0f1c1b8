package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	scanCounter    metric.Int64Counter
	scanDuration   metric.Float64Histogram
	urlCounter     metric.Int64Counter
	findingCounter metric.Int64Counter
}

// New installs global tracer and meter providers exporting over OTLP/HTTP.
// When telemetry is disabled a no-op implementation is returned.
func New(ctx context.Context, cfg config.TelemetryConfig) (core.Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	client := otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(mp)

	t, err := newInstruments(mp.Meter(cfg.ServiceName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	t.tracerProvider = tp
	t.meterProvider = mp
	return t, nil
}

func newInstruments(meter metric.Meter) (*telemetry, error) {
	scanCounter, err := meter.Int64Counter("siteprobe.scans.total",
		metric.WithDescription("Total number of scans"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	scanDuration, err := meter.Float64Histogram("siteprobe.scan.duration",
		metric.WithDescription("Scan duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	urlCounter, err := meter.Int64Counter("siteprobe.urls.visited",
		metric.WithDescription("URLs visited by the crawler"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	findingCounter, err := meter.Int64Counter("siteprobe.findings.total",
		metric.WithDescription("Total number of findings"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		scanCounter:    scanCounter,
		scanDuration:   scanDuration,
		urlCounter:     urlCounter,
		findingCounter: findingCounter,
	}, nil
}

func (t *telemetry) RecordScan(duration float64, success bool) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Bool("scan.success", success))

	t.scanCounter.Add(ctx, 1, attrs)
	t.scanDuration.Record(ctx, duration, attrs)
}

func (t *telemetry) RecordURLsVisited(count int) {
	t.urlCounter.Add(context.Background(), int64(count))
}

func (t *telemetry) RecordFinding(kind types.FindingKind, severity types.Severity) {
	t.findingCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("finding.type", string(kind)),
		attribute.String("finding.severity", string(severity)),
	))
}

// Close flushes pending spans and metrics.
func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}
	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

type noopTelemetry struct{}

// NewNoop returns telemetry that records nothing.
func NewNoop() core.Telemetry { return &noopTelemetry{} }

func (n *noopTelemetry) RecordScan(duration float64, success bool)                     {}
func (n *noopTelemetry) RecordURLsVisited(count int)                                   {}
func (n *noopTelemetry) RecordFinding(kind types.FindingKind, severity types.Severity) {}
func (n *noopTelemetry) Close() error                                                  { return nil }
