// Package metrics instruments the node manager with OpenTelemetry
// metrics: dispatch counts, refresh latency, in-flight gauges, and
// scoring outcomes. It is purely an observability concern — it has no
// bearing on routing decisions — and is carried even though spec.md's
// Non-goals exclude health probing and circuit breaking, which are
// routing-decision features, not logging/metrics plumbing.
package metrics

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config holds the metrics exporter configuration.
type Config struct {
	Enabled          bool
	OTLPEndpoint     string
	ExportIntervalMS int
	ServiceName      string
	ServiceVersion   string
}

// FlagPointers holds pointers to flag values for metrics configuration.
type FlagPointers struct {
	enable   *bool
	endpoint *string
	interval *int
}

// RegisterFlags registers metrics-related command-line flags.
func RegisterFlags() *FlagPointers {
	return &FlagPointers{
		enable:   flag.Bool("metrics-enabled", false, "Export OpenTelemetry metrics via OTLP/gRPC"),
		endpoint: flag.String("metrics-otlp-endpoint", "localhost:4317", "OTLP gRPC collector endpoint"),
		interval: flag.Int("metrics-export-interval-ms", 15000, "Metric export interval in milliseconds"),
	}
}

// ToConfig converts flag pointers to a Config. Must be called after flag.Parse().
func (f *FlagPointers) ToConfig(serviceName, serviceVersion string) Config {
	return Config{
		Enabled:          *f.enable,
		OTLPEndpoint:     *f.endpoint,
		ExportIntervalMS: *f.interval,
		ServiceName:      serviceName,
		ServiceVersion:   serviceVersion,
	}
}

// Recorder records the node manager's instruments. Safe for concurrent
// use by multiple goroutines. Every method is a no-op on a nil
// *Recorder; a zero Recorder struct is not usable, so build one with New.
type Recorder struct {
	provider *sdkmetric.MeterProvider // nil when running with a no-op meter

	dispatchTotal   metric.Int64Counter
	dispatchErrors  metric.Int64Counter
	refreshDuration metric.Float64Histogram
	refreshErrors   metric.Int64Counter
	inFlight        metric.Int64UpDownCounter
	nodeScore       metric.Float64Histogram
}

// New builds a Recorder exporting via OTLP/gRPC when cfg.Enabled, or a
// no-op Recorder otherwise (all recording calls become cheap no-ops).
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	if !cfg.Enabled {
		return newRecorder(noop.NewMeterProvider().Meter("alloy-nodemanager"), nil)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: creating resource: %w", err)
	}

	interval := time.Duration(cfg.ExportIntervalMS) * time.Millisecond
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	return newRecorder(provider.Meter("alloy-nodemanager"), provider)
}

func newRecorder(meter metric.Meter, provider *sdkmetric.MeterProvider) (*Recorder, error) {
	dispatchTotal, err := meter.Int64Counter("alloy.dispatch.total",
		metric.WithDescription("Routed dispatch calls (image/chat/audio), by node and operation"))
	if err != nil {
		return nil, err
	}
	dispatchErrors, err := meter.Int64Counter("alloy.dispatch.errors",
		metric.WithDescription("Dispatch calls that failed at the backend"))
	if err != nil {
		return nil, err
	}
	refreshDuration, err := meter.Float64Histogram("alloy.refresh.duration",
		metric.WithUnit("s"), metric.WithDescription("Per-node inventory refresh latency"))
	if err != nil {
		return nil, err
	}
	refreshErrors, err := meter.Int64Counter("alloy.refresh.errors",
		metric.WithDescription("Per-node inventory refresh failures"))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("alloy.inflight",
		metric.WithDescription("In-flight dispatches currently held on a node"))
	if err != nil {
		return nil, err
	}
	nodeScore, err := meter.Float64Histogram("alloy.selector.score",
		metric.WithDescription("Candidate scores considered by the selector"))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		provider:        provider,
		dispatchTotal:   dispatchTotal,
		dispatchErrors:  dispatchErrors,
		refreshDuration: refreshDuration,
		refreshErrors:   refreshErrors,
		inFlight:        inFlight,
		nodeScore:       nodeScore,
	}, nil
}

// RecordDispatch records one routed dispatch to the given node/operation.
func (r *Recorder) RecordDispatch(ctx context.Context, node, operation string, failed bool) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("node", node), attribute.String("operation", operation))
	r.dispatchTotal.Add(ctx, 1, attrs)
	if failed {
		r.dispatchErrors.Add(ctx, 1, attrs)
	}
}

// RecordRefresh records the duration and outcome of one node's refresh.
func (r *Recorder) RecordRefresh(ctx context.Context, node string, d time.Duration, err error) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("node", node))
	r.refreshDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		r.refreshErrors.Add(ctx, 1, attrs)
	}
}

// AdjustInFlight records a +1/-1 change to a node's in-flight gauge.
func (r *Recorder) AdjustInFlight(ctx context.Context, node string, delta int64) {
	if r == nil {
		return
	}
	r.inFlight.Add(ctx, delta, metric.WithAttributes(attribute.String("node", node)))
}

// RecordScore records a candidate's score during selection.
func (r *Recorder) RecordScore(ctx context.Context, node, modelID string, score float64) {
	if r == nil {
		return
	}
	r.nodeScore.Record(ctx, score, metric.WithAttributes(
		attribute.String("node", node), attribute.String("model_id", modelID)))
}

// Shutdown flushes and releases the metrics pipeline. No-op for a
// no-op Recorder.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}
