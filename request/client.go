package request

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/csabourin/wampums-client/cache"
	"github.com/csabourin/wampums-client/connectivity"
	"github.com/csabourin/wampums-client/dispatch"
	"github.com/csabourin/wampums-client/observe"
)

// Sentinel errors for client construction.
var (
	ErrNilDispatcher = errors.New("request: dispatcher is nil")
)

// Dispatcher performs the network calls. *dispatch.Client implements it.
type Dispatcher interface {
	Do(ctx context.Context, req dispatch.Request) (*dispatch.Envelope, error)
}

// Enqueuer accepts writes for deferred replay. *offline.Queue
// implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req dispatch.Request) (*dispatch.Envelope, error)
}

// Config configures the client.
type Config struct {
	// Dispatcher performs the upstream calls. Required.
	Dispatcher Dispatcher

	// Store caches read responses. Optional; without it every read
	// dispatches.
	Store cache.Store

	// Keys builds cache keys. Default: an unscoped builder.
	Keys *cache.KeyBuilder

	// Policy governs read TTLs. The zero policy disables caching even
	// when a store is configured.
	Policy cache.Policy

	// Queue accepts writes while offline. Optional; without it offline
	// writes dispatch (and fail) like online ones.
	Queue Enqueuer

	// Connectivity decides the write routing. Optional; without it the
	// client is assumed online.
	Connectivity connectivity.Detector

	// Invalidator runs the domain invalidation hook after successful
	// mutations. Optional.
	Invalidator *cache.Invalidator

	Logger  observe.Logger
	Metrics observe.Metrics
}

// Client is the cached, deduplicated, offline-aware call surface.
type Client struct {
	dispatcher   Dispatcher
	store        cache.Store
	keys         *cache.KeyBuilder
	policy       cache.Policy
	queue        Enqueuer
	connectivity connectivity.Detector
	invalidator  *cache.Invalidator
	logger       observe.Logger
	metrics      observe.Metrics

	// group collapses concurrent identical reads into one flight.
	group singleflight.Group
}

// NewClient creates a client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	if cfg.Keys == nil {
		cfg.Keys = cache.NewKeyBuilder(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NoopMetrics()
	}

	return &Client{
		dispatcher:   cfg.Dispatcher,
		store:        cfg.Store,
		keys:         cfg.Keys,
		policy:       cfg.Policy,
		queue:        cfg.Queue,
		connectivity: cfg.Connectivity,
		invalidator:  cfg.Invalidator,
		logger:       cfg.Logger.WithScope("request"),
		metrics:      cfg.Metrics,
	}, nil
}

// Get performs a cached read.
//
// Concurrent Gets with the same method, key, and options share one
// upstream flight and one result. Unless ForceRefresh is set, a fresh
// cache entry is served without dispatching. A successful response is
// cached under the policy's effective TTL. When the dispatch fails and
// an expired entry exists, the stale value is served instead of the
// error.
func (c *Client) Get(ctx context.Context, endpoint string, opts Options) (*dispatch.Envelope, error) {
	key := c.keys.Key(ctx, endpoint, opts.Params)

	sig, err := signature(http.MethodGet, key, opts)
	if err != nil {
		// Unhashable options forfeit deduplication, nothing else.
		c.logger.Warn(ctx, "read not deduplicated", observe.Field{Key: "error", Value: err.Error()})
		return c.get(ctx, endpoint, key, opts)
	}

	v, err, _ := c.group.Do(sig, func() (any, error) {
		return c.get(ctx, endpoint, key, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*dispatch.Envelope), nil
}

func (c *Client) get(ctx context.Context, endpoint, key string, opts Options) (*dispatch.Envelope, error) {
	meta := observe.CallMeta{Method: http.MethodGet, Endpoint: endpoint}

	if c.store != nil && !opts.ForceRefresh {
		if value, ok := c.store.Get(ctx, key); ok {
			c.metrics.RecordCacheLookup(ctx, meta, observe.OutcomeHit)
			return &dispatch.Envelope{Success: true, Data: value}, nil
		}
	}

	env, err := c.dispatcher.Do(ctx, dispatch.Request{
		Method:   http.MethodGet,
		Endpoint: endpoint,
		Params:   opts.Params,
		Headers:  opts.Headers,
		Retries:  opts.Retries,
	})
	if err == nil {
		c.metrics.RecordCacheLookup(ctx, meta, observe.OutcomeMiss)
		c.cacheResponse(ctx, key, env, opts)
		return env, nil
	}

	if c.store != nil {
		if value, ok := c.store.GetIgnoringExpiration(ctx, key); ok {
			c.logger.Warn(ctx, "serving stale cache after dispatch failure",
				observe.Field{Key: "endpoint", Value: endpoint},
				observe.Field{Key: "error", Value: err.Error()})
			c.metrics.RecordCacheLookup(ctx, meta, observe.OutcomeStale)
			return &dispatch.Envelope{Success: true, Data: value}, nil
		}
	}

	c.metrics.RecordCacheLookup(ctx, meta, observe.OutcomeMiss)
	return nil, err
}

func (c *Client) cacheResponse(ctx context.Context, key string, env *dispatch.Envelope, opts Options) {
	if c.store == nil || !env.Success || len(env.Data) == 0 {
		return
	}
	ttl := c.policy.EffectiveTTL(opts.TTL)
	if ttl <= 0 {
		return
	}
	if err := c.store.Set(ctx, key, env.Data, ttl); err != nil {
		// Best-effort: a failed write costs a future cache miss.
		c.logger.Warn(ctx, "cache write failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()})
	}
}

// Do performs a write.
//
// While online the request dispatches immediately and, on success, the
// invalidation hook matching the endpoint's domain runs. While offline
// the request is queued for replay and the returned envelope carries
// the synthetic queued acknowledgement.
func (c *Client) Do(ctx context.Context, method, endpoint string, opts Options) (*dispatch.Envelope, error) {
	req := dispatch.Request{
		Method:    method,
		Endpoint:  endpoint,
		Params:    opts.Params,
		Body:      opts.Body,
		Multipart: opts.Multipart,
		Headers:   opts.Headers,
		Retries:   opts.Retries,
	}

	if c.offline() && c.queue != nil && method != http.MethodGet {
		return c.queue.Enqueue(ctx, req)
	}

	env, err := c.dispatcher.Do(ctx, req)
	if err == nil && env.Success {
		c.invalidate(ctx, endpoint)
	}
	return env, err
}

func (c *Client) offline() bool {
	return c.connectivity != nil && !c.connectivity.Online()
}

// invalidate maps an endpoint to its mutation domain and runs the hook.
func (c *Client) invalidate(ctx context.Context, endpoint string) {
	if c.invalidator == nil {
		return
	}

	switch resource := resourceName(endpoint); {
	case strings.HasPrefix(resource, "participant"):
		c.invalidator.Participants(ctx)
	case strings.HasPrefix(resource, "group"):
		c.invalidator.Membership(ctx)
	case strings.HasPrefix(resource, "payment"),
		strings.HasPrefix(resource, "budget"),
		strings.HasPrefix(resource, "finance"):
		c.invalidator.Finance(ctx)
	case strings.HasPrefix(resource, "badge"):
		c.invalidator.Badges(ctx)
	case strings.HasPrefix(resource, "medication"),
		strings.HasPrefix(resource, "health"):
		c.invalidator.Medication(ctx)
	case strings.HasPrefix(resource, "attendance"):
		c.invalidator.Attendance(ctx)
	case strings.HasPrefix(resource, "organization_settings"),
		strings.HasPrefix(resource, "form"):
		c.invalidator.Settings(ctx)
	}
}

// resourceName reduces an endpoint to its first path segment under the
// canonical namespace.
func resourceName(endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	path = strings.Trim(path, "/")
	path = strings.TrimPrefix(path, "api/")
	path = strings.TrimPrefix(path, "v1/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
