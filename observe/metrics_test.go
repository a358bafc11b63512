package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	m, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	meta := CallMeta{Method: "GET", Endpoint: "participants"}

	// None of these should panic.
	m.RecordCall(ctx, meta, 120*time.Millisecond, nil)
	m.RecordCall(ctx, meta, 3*time.Second, errors.New("request failed"))
	m.RecordCacheLookup(ctx, meta, OutcomeHit)
	m.RecordCacheLookup(ctx, meta, OutcomeStale)
	m.RecordQueueEvent(ctx, QueueEnqueued)
	m.RecordQueueEvent(ctx, QueueReplayFailed)
}

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics()
	m.RecordCall(context.Background(), CallMeta{}, 0, nil)
	m.RecordCacheLookup(context.Background(), CallMeta{}, OutcomeMiss)
	m.RecordQueueEvent(context.Background(), QueueReplayed)
}

func TestCacheOutcome_String(t *testing.T) {
	tests := []struct {
		outcome CacheOutcome
		want    string
	}{
		{OutcomeHit, "hit"},
		{OutcomeMiss, "miss"},
		{OutcomeStale, "stale"},
	}
	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestQueueEvent_String(t *testing.T) {
	tests := []struct {
		event QueueEvent
		want  string
	}{
		{QueueEnqueued, "enqueued"},
		{QueueReplayed, "replayed"},
		{QueueReplayFailed, "replay_failed"},
	}
	for _, tt := range tests {
		if got := tt.event.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
