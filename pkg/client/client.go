// Package client provides the resilient request-execution core: it turns one
// logical API request into one or more physical HTTP exchanges, handling
// replication lag, rate limiting, read-only windows, and network failures
// under a bounded retry budget.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nachtfalke/wiki-action-client/pkg/session"
	"github.com/nachtfalke/wiki-action-client/pkg/throttle"
)

// Prometheus metrics for request execution.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_requests_total",
		Help: "Total API requests by action and outcome",
	}, []string{"action", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wiki_request_duration_seconds",
		Help:    "Logical request duration in seconds by action, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"action"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_errors_total",
		Help: "Total API errors by kind",
	}, []string{"kind"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the fixed API endpoint, e.g. "https://wiki.example.org/w/api.php".
	BaseURL string

	// UserAgent identifies the caller to the server (required).
	UserAgent string

	// MaxLag is the declared ceiling on acceptable replication lag in
	// seconds. Responses reporting lag at or above it trigger a proactive,
	// unbilled backoff. Zero disables lag handling.
	MaxLag int

	// LagWaitFallback is the lag backoff used when the server supplies no
	// retry hint.
	LagWaitFallback time.Duration

	// MaxLagWait optionally bounds the total time spent in proactive lag
	// waits for one logical request. Zero means unbounded, matching the
	// server-driven behavior.
	MaxLagWait time.Duration

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// ReadTimeout bounds one full request/response exchange.
	ReadTimeout time.Duration

	// MaxAttempts is the retry budget for billed transient failures.
	MaxAttempts int

	// RetryWait is the fixed wait before retrying a rate-limited or
	// read-only failure when the server supplies no hint.
	RetryWait time.Duration

	// CompressGzip enables gzip accept-encoding with transparent
	// decompression.
	CompressGzip bool

	// WriteInterval is the minimum spacing between write-class actions.
	WriteInterval time.Duration

	// DecodeLag extracts the replication lag indicator from response
	// headers. Defaults to DefaultLagHeader.
	DecodeLag LagHeaderFunc

	// DecodeRetryAfter extracts the server-suggested wait from response
	// headers. Defaults to DefaultRetryAfter.
	DecodeRetryAfter RetryAfterFunc
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:          baseURL,
		UserAgent:        userAgent,
		MaxLag:           5,
		LagWaitFallback:  5 * time.Second,
		ConnectTimeout:   30 * time.Second,
		ReadTimeout:      180 * time.Second,
		MaxAttempts:      3,
		RetryWait:        10 * time.Second,
		CompressGzip:     true,
		WriteInterval:    throttle.DefaultInterval,
		DecodeLag:        DefaultLagHeader,
		DecodeRetryAfter: DefaultRetryAfter,
	}
}

// RawResponse is the successful outcome of one logical request.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Soft carries an operation-specific "nothing to do" condition the
	// server reported alongside success.
	Soft *Condition
}

// Client executes logical requests against one API endpoint with one
// session. Multiple goroutines may share a client.
type Client struct {
	httpClient *http.Client
	config     Config
	session    *session.Session
	throttle   *throttle.Throttle
	decoder    ResponseDecoder
	logger     zerolog.Logger
}

// Option configures a Client beyond its Config.
type Option func(*Client)

// WithSession supplies a pre-built session (e.g. restored from a snapshot).
func WithSession(s *session.Session) Option {
	return func(c *Client) { c.session = s }
}

// WithThrottle supplies a shared write throttle.
func WithThrottle(t *throttle.Throttle) Option {
	return func(c *Client) { c.throttle = t }
}

// WithLogger injects the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets a custom http.Client (for testing). Its Jar is
// replaced by the session's cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client. The decoder supplies the wire-format boundary; see
// pkg/wikixml for the default.
func New(cfg Config, decoder ResponseDecoder, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("response decoder is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}
	if cfg.DecodeLag == nil {
		cfg.DecodeLag = DefaultLagHeader
	}
	if cfg.DecodeRetryAfter == nil {
		cfg.DecodeRetryAfter = DefaultRetryAfter
	}

	c := &Client{
		config:  cfg,
		decoder: decoder,
		logger:  log.With().Str("component", "wiki-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.session == nil {
		sess, err := session.New(cfg.BaseURL, session.WithLogger(c.logger))
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		c.session = sess
	}
	if c.throttle == nil {
		c.throttle = throttle.New(cfg.WriteInterval)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				DisableCompression: !cfg.CompressGzip,
			},
		}
	}
	c.httpClient.Jar = c.session.Jar()

	return c, nil
}

// Session returns the session owned by the client.
func (c *Client) Session() *session.Session { return c.session }

// Throttle returns the write throttle owned by the client.
func (c *Client) Throttle() *throttle.Throttle { return c.throttle }

// Decoder returns the wire-format decoder.
func (c *Client) Decoder() ResponseDecoder { return c.decoder }

// Execute issues one logical request with the configured retry budget.
func (c *Client) Execute(ctx context.Context, req *Request) (*RawResponse, error) {
	return c.ExecuteWithAttempts(ctx, req, c.config.MaxAttempts)
}

// ExecuteWithAttempts issues one logical request, billing at most
// maxAttempts attempts against transient failures. Proactive lag waits are
// never billed. Fatal conditions propagate immediately.
func (c *Client) ExecuteWithAttempts(ctx context.Context, req *Request, maxAttempts int) (*RawResponse, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	action := req.Action()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}()

	if req.IsWrite() {
		if err := c.session.RecordWrite(ctx); err != nil {
			c.session.InvalidateTokens()
			errorsTotal.WithLabelValues(string(KindAssert)).Inc()
			return nil, &APIError{
				Kind:    KindAssert,
				Code:    "statuscheck",
				Message: "session re-validation failed",
				Err:     err,
			}
		}
		if err := c.throttle.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	extra := c.extraParams()

	var lagDeadline time.Time
	if c.config.MaxLagWait > 0 {
		lagDeadline = start.Add(c.config.MaxLagWait)
	}

	attempt := 1
	for {
		resp, retryable, err := c.attempt(ctx, req, extra, lagDeadline)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("action", action).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			requestsTotal.WithLabelValues(action, fmt.Sprintf("%d", resp.StatusCode)).Inc()
			return resp, nil
		}
		if !retryable {
			return nil, err
		}

		// Billed transient failure.
		kind := classify(err)
		errorsTotal.WithLabelValues(string(kind)).Inc()
		if attempt >= maxAttempts {
			retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
			c.logger.Error().
				Str("action", action).
				Str("error_kind", string(kind)).
				Int("max_attempts", maxAttempts).
				Msg("Retry budget exhausted")
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, maxAttempts, err)
		}
		retriesTotal.WithLabelValues(string(kind)).Inc()

		wait := c.transientWait(err)
		c.logger.Warn().
			Str("action", action).
			Str("error_kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after transient failure")
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
		attempt++
	}
}

// transientError wraps a billed transient failure with the header context
// needed to pick the retry delay.
type transientError struct {
	kind   ErrorKind
	header http.Header
	err    error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

func classify(err error) ErrorKind {
	if te, ok := err.(*transientError); ok {
		return te.kind
	}
	return KindNetwork
}

// transientWait picks the backoff for a billed transient failure. Network
// failures retry immediately; server-reported conditions honor the server
// hint and fall back to the fixed wait.
func (c *Client) transientWait(err error) time.Duration {
	te, ok := err.(*transientError)
	if !ok || te.kind == KindNetwork {
		return 0
	}
	return c.retryDelay(te.header)
}

// attempt performs one physical exchange. The second return is true when the
// failure is a billed transient condition; false means terminal (fatal API
// error or programmer error). Proactive lag waits happen inside attempt and
// never surface as failures unless the lag deadline is exceeded.
func (c *Client) attempt(ctx context.Context, req *Request, extra map[string]string, lagDeadline time.Time) (*RawResponse, bool, error) {
	for {
		httpReq, err := req.build(ctx, c.config.BaseURL, extra)
		if err != nil {
			// Construction failures are programmer errors, never retried.
			return nil, false, err
		}
		httpReq.Header.Set("User-Agent", c.config.UserAgent)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, true, &transientError{kind: KindNetwork, err: err}
		}

		// Proactive lag backoff: not billed against the retry budget.
		if lag, ok := c.config.DecodeLag(resp.Header); ok && c.config.MaxLag > 0 &&
			lag >= time.Duration(c.config.MaxLag)*time.Second {
			wait := c.lagDelay(resp.Header)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if !lagDeadline.IsZero() && time.Now().Add(wait).After(lagDeadline) {
				errorsTotal.WithLabelValues(string(KindLag)).Inc()
				return nil, false, &APIError{
					Kind:    KindLag,
					Code:    "maxlag",
					Message: fmt.Sprintf("replication lag %v still above threshold", lag),
					Err:     ErrLagWaitExceeded,
				}
			}

			lagWaitsTotal.Inc()
			lagWaitSeconds.Observe(wait.Seconds())
			c.logger.Warn().
				Str("action", req.Action()).
				Float64("lag_seconds", lag.Seconds()).
				Dur("backoff", wait).
				Msg("Replication lag above threshold, backing off")
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, false, err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, true, &transientError{kind: KindNetwork, err: err}
		}

		if resp.StatusCode >= 500 {
			return nil, true, &transientError{
				kind:   KindServer,
				header: resp.Header,
				err:    fmt.Errorf("server error: %s", resp.Status),
			}
		}
		if resp.StatusCode >= 400 {
			errorsTotal.WithLabelValues(string(KindHTTP)).Inc()
			return nil, false, &APIError{
				Kind:       KindHTTP,
				Message:    resp.Status,
				HTTPStatus: resp.StatusCode,
			}
		}

		cond := c.decoder.DecodeError(body)
		if cond == nil {
			c.logWarnings(req.Action(), body)
			return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, false, nil
		}

		switch {
		case cond.Kind == KindNothingToDo:
			c.logger.Info().
				Str("action", req.Action()).
				Str("code", cond.Code).
				Msg("Server reported nothing to do")
			c.logWarnings(req.Action(), body)
			return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body, Soft: cond}, false, nil

		case cond.Kind == KindLag:
			// Lag reported in the body instead of the headers. Same
			// proactive handling, still unbilled.
			wait := c.lagDelay(resp.Header)
			if !lagDeadline.IsZero() && time.Now().Add(wait).After(lagDeadline) {
				errorsTotal.WithLabelValues(string(KindLag)).Inc()
				return nil, false, &APIError{
					Kind:    KindLag,
					Code:    cond.Code,
					Message: cond.Message,
					Err:     ErrLagWaitExceeded,
				}
			}
			lagWaitsTotal.Inc()
			lagWaitSeconds.Observe(wait.Seconds())
			c.logger.Warn().
				Str("action", req.Action()).
				Str("code", cond.Code).
				Dur("backoff", wait).
				Msg("Replication lag reported in response body, backing off")
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, false, err
			}
			continue

		case cond.Kind.Transient():
			return nil, true, &transientError{
				kind:   cond.Kind,
				header: resp.Header,
				err: &APIError{
					Kind:       cond.Kind,
					Code:       cond.Code,
					Message:    cond.Message,
					HTTPStatus: resp.StatusCode,
				},
			}

		default:
			if cond.Kind == KindAssert {
				c.session.InvalidateTokens()
			}
			errorsTotal.WithLabelValues(string(cond.Kind)).Inc()
			return nil, false, &APIError{
				Kind:       cond.Kind,
				Code:       cond.Code,
				Message:    cond.Message,
				HTTPStatus: resp.StatusCode,
			}
		}
	}
}

// logWarnings surfaces non-fatal server warnings in the log.
func (c *Client) logWarnings(action string, body []byte) {
	wd, ok := c.decoder.(WarningsDecoder)
	if !ok {
		return
	}
	for _, w := range wd.DecodeWarnings(body) {
		c.logger.Warn().
			Str("action", action).
			Str("warning", w).
			Msg("Server warning")
	}
}

// extraParams builds the executor-owned parameters merged into every
// physical request: wire format, maxlag declaration, session assertions.
func (c *Client) extraParams() map[string]string {
	extra := map[string]string{}
	if f, ok := c.decoder.(interface{ Format() string }); ok {
		extra["format"] = f.Format()
	}
	if c.config.MaxLag > 0 {
		extra["maxlag"] = fmt.Sprintf("%d", c.config.MaxLag)
	}
	user, bot := c.session.Assertions()
	switch {
	case bot:
		extra["assert"] = "bot"
	case user:
		extra["assert"] = "user"
	}
	return extra
}

// Token returns the cached action token of the given kind, fetching it on
// demand through a token query. The decoder must implement TokenDecoder.
func (c *Client) Token(ctx context.Context, kind session.TokenKind) (string, error) {
	td, ok := c.decoder.(TokenDecoder)
	if !ok {
		return "", fmt.Errorf("decoder %T does not support token extraction", c.decoder)
	}
	return c.session.TokenFor(ctx, kind, func(ctx context.Context) (string, error) {
		req := NewGet("query")
		if err := req.Set("meta", "tokens"); err != nil {
			return "", err
		}
		if err := req.Set("type", string(kind)); err != nil {
			return "", err
		}
		resp, err := c.Execute(ctx, req)
		if err != nil {
			return "", err
		}
		tok, found := td.DecodeToken(resp.Body, string(kind))
		if !found {
			return "", fmt.Errorf("token %q missing from response", kind)
		}
		return tok, nil
	})
}
