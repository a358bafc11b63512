// Package connectivity tracks whether the remote API is reachable.
//
// The data-access layer consults the detector before dispatching writes
// (offline writes are queued instead) and replays the queue when the
// monitor observes an offline-to-online transition.
package connectivity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/csabourin/wampums-client/observe"
)

// Sentinel errors for connectivity operations.
var (
	ErrMissingProbeURL = errors.New("connectivity: probe URL is required")
	ErrAlreadyStarted  = errors.New("connectivity: monitor already started")
)

// Detector reports the current connectivity state.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Online is a best-effort snapshot and must not block.
type Detector interface {
	Online() bool
}

// Config configures the Monitor.
type Config struct {
	// ProbeURL is requested with HEAD on every probe. Any HTTP response,
	// including a 5xx, counts as online; only transport errors count as
	// offline.
	ProbeURL string

	// Interval between probes. Default: 30s.
	Interval time.Duration

	// Timeout per probe. Default: 5s.
	Timeout time.Duration

	// Client is the HTTP client used for probes. Default: http.DefaultClient.
	Client *http.Client

	// Logger receives state-transition entries. Default: no-op.
	Logger observe.Logger
}

// Monitor polls a probe URL and notifies subscribers of state transitions.
// It starts in the online state; the first failed probe flips it.
type Monitor struct {
	probeURL string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   observe.Logger

	mu      sync.Mutex
	online  bool
	subs    []func(online bool)
	stop    chan struct{}
	started bool
}

// NewMonitor creates a Monitor from the given configuration.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.ProbeURL == "" {
		return nil, ErrMissingProbeURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NoopLogger()
	}

	return &Monitor{
		probeURL: cfg.ProbeURL,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		client:   cfg.Client,
		logger:   cfg.Logger.WithScope("connectivity"),
		online:   true,
	}, nil
}

// Online returns the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked on every state transition.
// Callbacks run synchronously on the probe goroutine; keep them short.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline forces the state, notifying subscribers on a transition.
// Used by hosts with an out-of-band connectivity signal, and by tests.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info(context.Background(), "connectivity changed",
		observe.Field{Key: "online", Value: online})
	for _, fn := range subs {
		fn(online)
	}
}

// Start begins probing until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	go m.loop(ctx, stop)
	return nil
}

// Stop halts probing. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	close(m.stop)
}

func (m *Monitor) loop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}

// probe reports whether the probe URL answered at all.
func (m *Monitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Static is a fixed-state detector for wiring and tests.
type Static bool

// Online implements Detector.
func (s Static) Online() bool { return bool(s) }

// Ensure implementations satisfy Detector
var (
	_ Detector = (*Monitor)(nil)
	_ Detector = Static(true)
)
