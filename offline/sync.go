package offline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/csabourin/wampums-client/dispatch"
	"github.com/csabourin/wampums-client/observe"
)

// ErrNilDispatcher indicates a Syncer was built without a dispatcher.
var ErrNilDispatcher = errors.New("offline: dispatcher is nil")

// Dispatcher performs the replayed network calls. *dispatch.Client
// implements it.
type Dispatcher interface {
	Do(ctx context.Context, req dispatch.Request) (*dispatch.Envelope, error)
}

// Notifier delivers connectivity transitions. *connectivity.Monitor
// implements it.
type Notifier interface {
	Subscribe(fn func(online bool))
}

// SyncResult is the outcome of replaying one entry.
type SyncResult struct {
	ID       string
	Method   string
	Endpoint string
	Err      error // nil on success
}

// SyncReport collects per-entry outcomes of one drain.
type SyncReport struct {
	Replayed  int
	Succeeded int
	Failed    int
	Results   []SyncResult
}

// Syncer drains the queue through the dispatcher in enqueue order.
type Syncer struct {
	queue      *Queue
	dispatcher Dispatcher
	logger     observe.Logger
	metrics    observe.Metrics

	// mu serializes drains so overlapping reconnect signals cannot
	// replay the same entry twice.
	mu sync.Mutex
}

// NewSyncer creates a Syncer over the given queue and dispatcher.
func NewSyncer(queue *Queue, dispatcher Dispatcher) (*Syncer, error) {
	if queue == nil {
		return nil, ErrNilDB
	}
	if dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	return &Syncer{
		queue:      queue,
		dispatcher: dispatcher,
		logger:     queue.logger,
		metrics:    queue.metrics,
	}, nil
}

// Sync replays every pending entry in enqueue order. Entries that
// succeed are removed individually; ones that fail return to pending
// with their attempt count bumped and are the only entries resent next
// cycle. Individual failures never abort the drain; the report carries
// each entry's outcome. Entries enqueued while a drain runs wait for
// the next cycle.
func (s *Syncer) Sync(ctx context.Context) (*SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for _, e := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		report.Replayed++
		result := SyncResult{ID: e.ID, Method: e.Method, Endpoint: e.Endpoint}

		if err := s.queue.markInFlight(ctx, e.ID); err != nil {
			result.Err = err
			report.Failed++
			report.Results = append(report.Results, result)
			continue
		}

		result.Err = s.replay(ctx, e)
		if result.Err == nil {
			report.Succeeded++
			s.metrics.RecordQueueEvent(ctx, observe.QueueReplayed)
			if err := s.queue.remove(ctx, e.ID); err != nil {
				s.logger.Error(ctx, "removing replayed mutation failed",
					observe.Field{Key: "id", Value: e.ID},
					observe.Field{Key: "error", Value: err.Error()})
			}
		} else {
			report.Failed++
			s.metrics.RecordQueueEvent(ctx, observe.QueueReplayFailed)
			s.logger.Warn(ctx, "queued mutation replay failed",
				observe.Field{Key: "id", Value: e.ID},
				observe.Field{Key: "endpoint", Value: e.Endpoint},
				observe.Field{Key: "attempts", Value: e.Attempts + 1},
				observe.Field{Key: "error", Value: result.Err.Error()})
			if err := s.queue.markFailed(ctx, e.ID); err != nil {
				s.logger.Error(ctx, "returning mutation to pending failed",
					observe.Field{Key: "id", Value: e.ID},
					observe.Field{Key: "error", Value: err.Error()})
			}
		}

		report.Results = append(report.Results, result)
	}

	return report, nil
}

// replay dispatches one entry with its original method, body, and
// headers, plus its idempotency key.
func (s *Syncer) replay(ctx context.Context, e Entry) error {
	headers := make(map[string]string, len(e.Headers)+1)
	for k, v := range e.Headers {
		headers[k] = v
	}
	headers["X-Idempotency-Key"] = e.IdempotencyKey

	req := dispatch.Request{
		Method:   e.Method,
		Endpoint: e.Endpoint,
		Headers:  headers,
	}
	if len(e.Body) > 0 {
		req.Body = json.RawMessage(e.Body)
	}

	env, err := s.dispatcher.Do(ctx, req)
	if err != nil {
		return err
	}
	if !env.Success {
		return dispatch.NetworkError(env.Message, 0, nil)
	}
	return nil
}

// AttachNotifier replays the queue whenever connectivity returns.
func (s *Syncer) AttachNotifier(n Notifier) {
	n.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := s.Sync(context.Background()); err != nil {
				s.logger.Error(context.Background(), "reconnect sync failed",
					observe.Field{Key: "error", Value: err.Error()})
			}
		}()
	})
}
