package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CallMeta identifies one logical API call for telemetry purposes.
type CallMeta struct {
	Method   string // HTTP method (GET, POST, ...)
	Endpoint string // Canonical resource path, without query
}

// CacheOutcome classifies a cache lookup.
type CacheOutcome int

const (
	// OutcomeMiss indicates no usable entry was found.
	OutcomeMiss CacheOutcome = iota
	// OutcomeHit indicates a fresh entry was served.
	OutcomeHit
	// OutcomeStale indicates an expired entry was served as a fallback.
	OutcomeStale
)

func (o CacheOutcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeStale:
		return "stale"
	default:
		return "miss"
	}
}

// QueueEvent classifies offline-queue activity.
type QueueEvent int

const (
	// QueueEnqueued indicates a mutation was stored while offline.
	QueueEnqueued QueueEvent = iota
	// QueueReplayed indicates a queued mutation replayed successfully.
	QueueReplayed
	// QueueReplayFailed indicates a queued mutation failed to replay.
	QueueReplayFailed
)

func (e QueueEvent) String() string {
	switch e {
	case QueueReplayed:
		return "replayed"
	case QueueReplayFailed:
		return "replay_failed"
	default:
		return "enqueued"
	}
}

// Metrics records telemetry for the data-access layer.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; recording is fire-and-forget.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one dispatched network call with its duration
	// and error status.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordCacheLookup records the outcome of a cached-read lookup.
	RecordCacheLookup(ctx context.Context, meta CallMeta, outcome CacheOutcome)

	// RecordQueueEvent records offline-queue activity.
	RecordQueueEvent(ctx context.Context, event QueueEvent)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	callTotal    metric.Int64Counter
	callErrors   metric.Int64Counter
	durationHist metric.Float64Histogram
	cacheLookups metric.Int64Counter
	queueEvents  metric.Int64Counter
}

// NewMetrics creates a Metrics instance recording through the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	callTotal, err := meter.Int64Counter(
		"api.request.total",
		metric.WithDescription("Total number of dispatched API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	callErrors, err := meter.Int64Counter(
		"api.request.errors",
		metric.WithDescription("Total number of failed API calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"api.request.duration_ms",
		metric.WithDescription("API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache lookups partitioned by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	queueEvents, err := meter.Int64Counter(
		"offline.queue.events",
		metric.WithDescription("Offline queue activity partitioned by event"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		callTotal:    callTotal,
		callErrors:   callErrors,
		durationHist: durationHist,
		cacheLookups: cacheLookups,
		queueEvents:  queueEvents,
	}, nil
}

func callAttrs(meta CallMeta) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("http.method", meta.Method),
		attribute.String("api.endpoint", meta.Endpoint),
	)
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	opt := callAttrs(meta)

	m.callTotal.Add(ctx, 1, opt)
	if err != nil {
		m.callErrors.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, meta CallMeta, outcome CacheOutcome) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("api.endpoint", meta.Endpoint),
		attribute.String("cache.outcome", outcome.String()),
	))
}

func (m *metricsImpl) RecordQueueEvent(ctx context.Context, event QueueEvent) {
	m.queueEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue.event", event.String()),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (noopMetrics) RecordCall(context.Context, CallMeta, time.Duration, error) {}
func (noopMetrics) RecordCacheLookup(context.Context, CallMeta, CacheOutcome)  {}
func (noopMetrics) RecordQueueEvent(context.Context, QueueEvent)               {}

// NoopMetrics returns a Metrics implementation that records nothing.
func NoopMetrics() Metrics {
	return noopMetrics{}
}

// Ensure metricsImpl implements Metrics
var _ Metrics = (*metricsImpl)(nil)
