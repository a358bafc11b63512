package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/csabourin/wampums-client/dispatch"
	"github.com/csabourin/wampums-client/observe"
)

// Sentinel errors for queue operations.
var (
	ErrNilDB              = errors.New("offline: database is nil")
	ErrMultipartNotQueued = errors.New("offline: multipart bodies cannot be queued")
)

// Entry states within the pending_mutations table.
const (
	statePending  = "pending"
	stateInFlight = "in_flight"
)

// Entry is one durably queued mutation.
type Entry struct {
	ID             string
	Seq            int64
	Endpoint       string
	Method         string
	Headers        map[string]string
	Body           json.RawMessage
	IdempotencyKey string
	Attempts       int
	EnqueuedAt     time.Time
}

// Options configures the Queue.
type Options struct {
	Logger    observe.Logger
	Metrics   observe.Metrics
	Localizer Localizer
}

// Queue is the durable offline mutation queue.
type Queue struct {
	db        *sql.DB
	logger    observe.Logger
	metrics   observe.Metrics
	localizer Localizer
	now       func() time.Time
}

// NewQueue creates the queue on the given database, creating its table
// if needed.
func NewQueue(db *sql.DB, opts Options) (*Queue, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if opts.Logger == nil {
		opts.Logger = observe.NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.NoopMetrics()
	}
	if opts.Localizer == nil {
		opts.Localizer = DefaultLocalizer("en")
	}

	const schema = `CREATE TABLE IF NOT EXISTS pending_mutations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		body BLOB,
		idempotency_key TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		enqueued_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("offline: create table: %w", err)
	}

	// Entries a previous process left mid-drain return to pending, so a
	// crash between dispatch and settlement never strands a write.
	if _, err := db.Exec("UPDATE pending_mutations SET state = ? WHERE state = ?",
		statePending, stateInFlight); err != nil {
		return nil, fmt.Errorf("offline: recover in-flight entries: %w", err)
	}

	return &Queue{
		db:        db,
		logger:    opts.Logger.WithScope("offline"),
		metrics:   opts.Metrics,
		localizer: opts.Localizer,
		now:       time.Now,
	}, nil
}

// Enqueue stores a write for later replay and returns the synthetic
// acknowledgement the caller surfaces instead of a server response.
func (q *Queue) Enqueue(ctx context.Context, req dispatch.Request) (*dispatch.Envelope, error) {
	if req.Multipart != nil {
		return nil, ErrMultipartNotQueued
	}

	var body []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("offline: encode body: %w", err)
		}
		body = encoded
	}

	headers, err := json.Marshal(req.Headers)
	if err != nil {
		return nil, fmt.Errorf("offline: encode headers: %w", err)
	}

	id := uuid.NewString()
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO pending_mutations (id, endpoint, method, headers, body, idempotency_key, state, attempts, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, ?)`,
		id, req.Endpoint, req.Method, string(headers), body, uuid.NewString(),
		q.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("offline: enqueue: %w", err)
	}

	q.metrics.RecordQueueEvent(ctx, observe.QueueEnqueued)
	q.logger.Info(ctx, "mutation queued while offline",
		observe.Field{Key: "id", Value: id},
		observe.Field{Key: "method", Value: req.Method},
		observe.Field{Key: "endpoint", Value: req.Endpoint})

	return &dispatch.Envelope{
		Success: true,
		Queued:  true,
		Message: q.localizer.QueuedMessage(),
	}, nil
}

// Pending returns queued entries in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seq, id, endpoint, method, headers, body, idempotency_key, attempts, enqueued_at
		 FROM pending_mutations WHERE state = ? ORDER BY seq`, statePending)
	if err != nil {
		return nil, fmt.Errorf("offline: list pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			headersRaw string
			body       []byte // body column is NULL for body-less mutations
			enqueuedAt string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Endpoint, &e.Method, &headersRaw, &body,
			&e.IdempotencyKey, &e.Attempts, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("offline: scan entry: %w", err)
		}
		e.Body = body
		if headersRaw != "" && headersRaw != "null" {
			if err := json.Unmarshal([]byte(headersRaw), &e.Headers); err != nil {
				return nil, fmt.Errorf("offline: decode headers: %w", err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
			e.EnqueuedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Len returns the number of entries in any state.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_mutations").Scan(&n); err != nil {
		return 0, fmt.Errorf("offline: count: %w", err)
	}
	return n, nil
}

// markInFlight transitions an entry to in-flight for the current drain.
func (q *Queue) markInFlight(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE pending_mutations SET state = ? WHERE id = ?", stateInFlight, id)
	if err != nil {
		return fmt.Errorf("offline: mark in-flight: %w", err)
	}
	return nil
}

// markFailed returns a failed entry to pending for the next sync cycle.
func (q *Queue) markFailed(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE pending_mutations SET state = ?, attempts = attempts + 1 WHERE id = ?", statePending, id)
	if err != nil {
		return fmt.Errorf("offline: mark failed: %w", err)
	}
	return nil
}

// remove deletes a successfully replayed entry.
func (q *Queue) remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM pending_mutations WHERE id = ?", id); err != nil {
		return fmt.Errorf("offline: remove: %w", err)
	}
	return nil
}
