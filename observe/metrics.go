package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache outcome metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; recording never blocks on I/O.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records the lookup outcome of a cached call
	// (hit, stale, miss, error).
	RecordLookup(ctx context.Context, meta CallMeta, outcome string)

	// RecordAdmission records whether a computed result was persisted and
	// its serialized size in bytes.
	RecordAdmission(ctx context.Context, meta CallMeta, admitted bool, size int)

	// RecordFallback records a swallowed cache-subsystem failure.
	RecordFallback(ctx context.Context, meta CallMeta, err error)

	// RecordOperation records a store operation with duration and error status.
	RecordOperation(ctx context.Context, meta CallMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	admissions   metric.Int64Counter
	fallbacks    metric.Int64Counter
	opErrors     metric.Int64Counter
	payloadBytes metric.Int64Histogram
	opDuration   metric.Float64Histogram
}

// NewMetrics creates a Metrics instance backed by the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	lookups, err := meter.Int64Counter(
		"cache.lookup.total",
		metric.WithDescription("Cached calls by lookup outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	admissions, err := meter.Int64Counter(
		"cache.admit.total",
		metric.WithDescription("Computed results by admission decision"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter(
		"cache.fallback.total",
		metric.WithDescription("Cache-subsystem failures degraded to a bypass"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	opErrors, err := meter.Int64Counter(
		"cache.op.errors",
		metric.WithDescription("Failed store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	payloadBytes, err := meter.Int64Histogram(
		"cache.payload.bytes",
		metric.WithDescription("Serialized result size before compression"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	opDuration, err := meter.Float64Histogram(
		"cache.op.duration_ms",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:      lookups,
		admissions:   admissions,
		fallbacks:    fallbacks,
		opErrors:     opErrors,
		payloadBytes: payloadBytes,
		opDuration:   opDuration,
	}, nil
}

func baseAttrs(meta CallMeta) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("cache.op", meta.Op)}
	if meta.ID != "" {
		attrs = append(attrs, attribute.String("cache.id", meta.ID))
	}
	return attrs
}

func (m *metricsImpl) RecordLookup(ctx context.Context, meta CallMeta, outcome string) {
	attrs := append(baseAttrs(meta), attribute.String("cache.outcome", outcome))
	m.lookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metricsImpl) RecordAdmission(ctx context.Context, meta CallMeta, admitted bool, size int) {
	opt := metric.WithAttributes(append(baseAttrs(meta), attribute.Bool("cache.admitted", admitted))...)
	m.admissions.Add(ctx, 1, opt)
	m.payloadBytes.Record(ctx, int64(size), opt)
}

func (m *metricsImpl) RecordFallback(ctx context.Context, meta CallMeta, _ error) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(baseAttrs(meta)...))
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("cache.op", meta.Op))
	if err != nil {
		m.opErrors.Add(ctx, 1, opt)
	}
	m.opDuration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

type noopMetrics struct{}

// NopMetrics returns a Metrics implementation that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordLookup(context.Context, CallMeta, string)                  {}
func (noopMetrics) RecordAdmission(context.Context, CallMeta, bool, int)            {}
func (noopMetrics) RecordFallback(context.Context, CallMeta, error)                 {}
func (noopMetrics) RecordOperation(context.Context, CallMeta, time.Duration, error) {}
