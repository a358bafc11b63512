package offline

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/csabourin/wampums-client/dispatch"
)

// stubDispatcher records replayed requests and fails the endpoints
// listed in failing.
type stubDispatcher struct {
	mu      sync.Mutex
	calls   []dispatch.Request
	failing map[string]bool
}

func (d *stubDispatcher) Do(ctx context.Context, req dispatch.Request) (*dispatch.Envelope, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	d.mu.Unlock()
	if d.failing[req.Endpoint] {
		return nil, dispatch.NetworkError("upstream unavailable", 503, nil)
	}
	return &dispatch.Envelope{Success: true}, nil
}

func (d *stubDispatcher) requests() []dispatch.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatch.Request(nil), d.calls...)
}

func TestSyncer_ReplaysOriginalRequest(t *testing.T) {
	q := newTestQueue(t, Options{})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, dispatch.Request{
		Method:   http.MethodPost,
		Endpoint: "participants",
		Body:     map[string]any{"first_name": "Alex"},
		Headers:  map[string]string{"X-Trace": "abc"},
	}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	d := &stubDispatcher{}
	s, err := NewSyncer(q, d)
	if err != nil {
		t.Fatalf("NewSyncer() error = %v", err)
	}

	report, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Replayed != 1 || report.Succeeded != 1 || report.Failed != 0 {
		t.Errorf("report = %+v, want one success", report)
	}

	calls := d.requests()
	if len(calls) != 1 {
		t.Fatalf("dispatcher calls = %d, want 1", len(calls))
	}
	req := calls[0]
	if req.Method != http.MethodPost || req.Endpoint != "participants" {
		t.Errorf("replayed %s %s, want POST participants", req.Method, req.Endpoint)
	}
	if req.Headers["X-Trace"] != "abc" {
		t.Errorf("original header missing from replay: %v", req.Headers)
	}
	if req.Headers["X-Idempotency-Key"] == "" {
		t.Error("replay is missing X-Idempotency-Key")
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Len() after successful sync = %d, want 0", n)
	}
}

func TestSyncer_FailedEntryStaysQueued(t *testing.T) {
	q := newTestQueue(t, Options{})
	ctx := context.Background()

	for _, ep := range []string{"participants", "attendance", "badges/42"} {
		if _, err := q.Enqueue(ctx, dispatch.Request{Method: http.MethodPost, Endpoint: ep}); err != nil {
			t.Fatalf("Enqueue(%q) error = %v", ep, err)
		}
	}

	d := &stubDispatcher{failing: map[string]bool{"attendance": true}}
	s, err := NewSyncer(q, d)
	if err != nil {
		t.Fatalf("NewSyncer() error = %v", err)
	}

	report, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Replayed != 3 || report.Succeeded != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 3 replayed, 2 succeeded, 1 failed", report)
	}

	// The failure must not abort the drain: entry three still went out.
	if calls := d.requests(); len(calls) != 3 {
		t.Fatalf("dispatcher calls = %d, want 3", len(calls))
	}

	entries, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("pending after sync = %d entries, want only the failed one", len(entries))
	}
	if entries[0].Endpoint != "attendance" || entries[0].Attempts != 1 {
		t.Errorf("pending entry = %+v, want attendance with attempts=1", entries[0])
	}
	key := entries[0].IdempotencyKey

	// Second cycle resends only the failed entry, with the same key.
	d2 := &stubDispatcher{}
	s2, err := NewSyncer(q, d2)
	if err != nil {
		t.Fatalf("NewSyncer() error = %v", err)
	}
	if _, err := s2.Sync(ctx); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	calls := d2.requests()
	if len(calls) != 1 || calls[0].Endpoint != "attendance" {
		t.Fatalf("second sync calls = %+v, want only attendance", calls)
	}
	if calls[0].Headers["X-Idempotency-Key"] != key {
		t.Errorf("idempotency key changed between retries: %q vs %q",
			calls[0].Headers["X-Idempotency-Key"], key)
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Len() after second sync = %d, want 0", n)
	}
}

func TestSyncer_UnsuccessfulEnvelopeCountsAsFailure(t *testing.T) {
	q := newTestQueue(t, Options{})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, dispatch.Request{Method: http.MethodPut, Endpoint: "medication/7"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	s, err := NewSyncer(q, rejectingDispatcher{})
	if err != nil {
		t.Fatalf("NewSyncer() error = %v", err)
	}
	report, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("report = %+v, want one failure", report)
	}
	if len(report.Results) != 1 || report.Results[0].Err == nil {
		t.Errorf("results = %+v, want an error on the single entry", report.Results)
	}
}

// rejectingDispatcher answers every replay with a success=false envelope.
type rejectingDispatcher struct{}

func (rejectingDispatcher) Do(ctx context.Context, req dispatch.Request) (*dispatch.Envelope, error) {
	return &dispatch.Envelope{Success: false, Message: "rejected"}, nil
}

func TestSyncer_NilDispatcher(t *testing.T) {
	q := newTestQueue(t, Options{})
	if _, err := NewSyncer(q, nil); err != ErrNilDispatcher {
		t.Errorf("NewSyncer(nil dispatcher) error = %v, want ErrNilDispatcher", err)
	}
	if _, err := NewSyncer(nil, &stubDispatcher{}); err != ErrNilDB {
		t.Errorf("NewSyncer(nil queue) error = %v, want ErrNilDB", err)
	}
}
