package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/csabourin/wampums-client/connectivity"
	"github.com/csabourin/wampums-client/observe"
	"github.com/csabourin/wampums-client/resilience"
)

// DefaultRetries is the number of retries after the first attempt when a
// request does not specify its own count.
const DefaultRetries = 1

// SessionProvider supplies the credential and tenant scope attached to
// every call. The session store implements it.
type SessionProvider interface {
	Token(ctx context.Context) (string, bool)
	OrganizationID(ctx context.Context) (string, bool)
	Clear(ctx context.Context) error
}

// Config configures the dispatcher.
type Config struct {
	// BaseURL is the API origin, e.g. "https://app.example.org".
	// Calls go to <BaseURL>/api/v1/<endpoint>.
	BaseURL string

	// HTTPClient performs the underlying calls. Default: a client whose
	// transport is instrumented with otelhttp.
	HTTPClient *http.Client

	// Session supplies credentials. Optional; without it calls go out
	// unauthenticated.
	Session SessionProvider

	// Connectivity gates the 401 login redirect: a 401 observed offline
	// is unreliable evidence of true invalidity, so the redirect is
	// deferred. Optional; without it the client is assumed online.
	Connectivity connectivity.Detector

	// Retry carries the backoff tuning. MaxAttempts is ignored; the
	// per-request retry count controls attempts.
	Retry resilience.RetryConfig

	// PublicRoutes lists route names that never force a login redirect.
	PublicRoutes []string

	// CurrentRoute reports the active view for the public-route check.
	// Optional; unknown routes are treated as requiring authentication.
	CurrentRoute func() string

	// RedirectToLogin navigates to the login view after an invalidated
	// session. Optional.
	RedirectToLogin func()

	Logger  observe.Logger
	Metrics observe.Metrics
}

// Request describes one logical network call.
type Request struct {
	Method   string
	Endpoint string // resource path, may carry an embedded query string

	// Params are merged into the query string. Nil values are dropped;
	// explicit params win over ones embedded in Endpoint.
	Params map[string]any

	// Body is JSON-encoded when Multipart is nil.
	Body any

	// Multipart switches the payload to multipart/form-data.
	Multipart *MultipartBody

	// Headers are added to the outbound call, after the standard ones.
	Headers map[string]string

	// Retries after the first attempt. Zero means DefaultRetries;
	// negative disables retrying.
	Retries int
}

// Client dispatches calls against the remote API.
type Client struct {
	baseURL      string
	http         *http.Client
	session      SessionProvider
	connectivity connectivity.Detector
	retry        resilience.RetryConfig
	publicRoutes map[string]bool
	currentRoute func() string
	redirect     func()
	logger       observe.Logger
	metrics      observe.Metrics
}

// NewClient creates a dispatcher from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NoopMetrics()
	}

	public := make(map[string]bool, len(cfg.PublicRoutes))
	for _, r := range cfg.PublicRoutes {
		public[r] = true
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		http:         cfg.HTTPClient,
		session:      cfg.Session,
		connectivity: cfg.Connectivity,
		retry:        cfg.Retry,
		publicRoutes: public,
		currentRoute: cfg.CurrentRoute,
		redirect:     cfg.RedirectToLogin,
		logger:       cfg.Logger.WithScope("dispatch"),
		metrics:      cfg.Metrics,
	}, nil
}

// Do performs one logical call under the retry policy. Network failures
// are retried with exponential backoff; auth, validation, and cancelled
// failures are terminal. On exhaustion the caller receives one
// AggregateError naming the attempt count and the last underlying cause.
func (c *Client) Do(ctx context.Context, req Request) (*Envelope, error) {
	if req.Method == "" {
		return nil, ErrMissingMethod
	}

	maxAttempts := req.Retries + 1
	if req.Retries == 0 {
		maxAttempts = DefaultRetries + 1
	} else if req.Retries < 0 {
		maxAttempts = 1
	}

	meta := observe.CallMeta{Method: req.Method, Endpoint: endpointName(req.Endpoint)}
	start := time.Now()

	retryCfg := c.retry
	retryCfg.MaxAttempts = maxAttempts
	retryCfg.RetryIf = func(err error) bool { return IsKind(err, KindNetwork) }
	callerOnRetry := retryCfg.OnRetry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		if callerOnRetry != nil {
			callerOnRetry(attempt, err, delay)
		}
		c.logger.Warn(ctx, "request failed, retrying",
			observe.Field{Key: "endpoint", Value: meta.Endpoint},
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "delay", Value: delay.String()},
			observe.Field{Key: "error", Value: err.Error()})
	}

	var (
		env      *Envelope
		attempts int
	)
	err := resilience.NewRetry(retryCfg).Execute(ctx, func(ctx context.Context) error {
		attempts++
		var attemptErr error
		env, attemptErr = c.attempt(ctx, req)
		return attemptErr
	})

	c.metrics.RecordCall(ctx, meta, time.Since(start), err)

	if err == nil {
		return env, nil
	}
	if IsKind(err, KindCancelled) {
		return nil, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The backoff wait observed the cancellation.
		return nil, CancelledError(err)
	}
	if IsKind(err, KindAuth) {
		c.handleAuthFailure(ctx)
		return nil, err
	}
	if IsKind(err, KindNetwork) {
		return nil, &AggregateError{Attempts: attempts, Last: err}
	}
	return nil, err
}

// attempt performs a single network round-trip and normalizes the outcome.
func (c *Client) attempt(ctx context.Context, req Request) (*Envelope, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, CancelledError(ctx.Err())
		}
		return nil, NetworkError("network request failed", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NetworkError("reading response body failed", resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, AuthError("session expired or invalid")
	}

	env := parseEnvelope(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "server returned " + resp.Status
		if env != nil && env.Message != "" {
			msg = env.Message
		}
		if env != nil && len(env.Errors) > 0 {
			return nil, ValidationError(msg, resp.StatusCode, env.Errors)
		}
		return nil, NetworkError(msg, resp.StatusCode, nil)
	}

	if env == nil {
		return nil, NetworkError("malformed response envelope", resp.StatusCode, nil)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		if len(env.Errors) > 0 {
			return nil, ValidationError(msg, resp.StatusCode, env.Errors)
		}
		return nil, NetworkError(msg, resp.StatusCode, nil)
	}

	return env, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	target, err := c.buildURL(req.Endpoint, req.Params)
	if err != nil {
		return nil, err
	}

	var (
		bodyReader  io.Reader
		contentType string
	)
	switch {
	case req.Multipart != nil:
		data, ct, err := req.Multipart.encode()
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
		contentType = ct
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("dispatch: encode body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("dispatch: build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.session != nil {
		if token, ok := c.session.Token(ctx); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
		if org, ok := c.session.OrganizationID(ctx); ok {
			httpReq.Header.Set("X-Organization-ID", org)
		}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// buildURL joins the endpoint onto the canonical /api/v1 namespace and
// merges explicit params into any query embedded in the endpoint.
func (c *Client) buildURL(endpoint string, params map[string]any) (string, error) {
	path, rawQuery, _ := strings.Cut(endpoint, "?")
	path = strings.Trim(path, "/")
	path = strings.TrimPrefix(path, "api/")
	path = strings.TrimPrefix(path, "v1/")

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("dispatch: parse endpoint query: %w", err)
	}
	for k, v := range params {
		if v == nil {
			continue
		}
		values.Set(k, paramString(v))
	}

	target := c.baseURL + "/api/v1/" + path
	if len(values) > 0 {
		target += "?" + values.Encode()
	}
	return target, nil
}

// handleAuthFailure clears the local session and navigates to login
// unless the active view is public or the client is offline.
func (c *Client) handleAuthFailure(ctx context.Context) {
	if c.session != nil {
		if err := c.session.Clear(ctx); err != nil {
			c.logger.Error(ctx, "clearing session after 401 failed",
				observe.Field{Key: "error", Value: err.Error()})
		}
	}

	if c.connectivity != nil && !c.connectivity.Online() {
		c.logger.Warn(ctx, "401 received while offline, login redirect deferred")
		return
	}
	if c.currentRoute != nil && c.publicRoutes[c.currentRoute()] {
		return
	}
	if c.redirect != nil {
		c.redirect()
	}
}

// endpointName strips any embedded query for metric labels.
func endpointName(endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	return strings.Trim(path, "/")
}

func paramString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
