package elvis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/syahrul84/ElvisAPI/pkg/sessioncache"
)

// Retry, backoff and timeout defaults.
const (
	defaultMaxRetries     = 3
	defaultRequestTimeout = 60 * time.Second
	baseBackoff           = 1 * time.Second
	maxBackoff            = 30 * time.Second
	backoffFactor         = 2.0
	jitterFraction        = 0.25
	defaultUserAgent      = "elvis-go/0.1"
	requestIDHeader       = "X-Request-Id"
)

// SessionStore persists the raw login response between client instances.
// Defined at the consumer; pkg/sessioncache provides file and Redis stores.
type SessionStore interface {
	// Load returns the cached document, or (nil, nil) if there is none.
	Load(ctx context.Context) ([]byte, error)
	// Save writes doc only if nothing is cached and reports whether it did.
	Save(ctx context.Context, doc []byte) (bool, error)
	// Clear removes the cached document if present.
	Clear(ctx context.Context) error
}

// Config holds the construction parameters of a Client. Only BaseURL is
// required; zero values select defaults.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// SessionCache is the cache file path used when Store is nil.
	// Defaults to sessioncache.DefaultPath.
	SessionCache string
	Store        SessionStore

	HTTPClient *http.Client
	Logger     *slog.Logger

	// RequestTimeout bounds each JSON request including reading the body.
	// Uploads and downloads are bounded by the caller's context only.
	RequestTimeout time.Duration
	// MaxRetries is the retry budget for throttled or unavailable responses.
	// Zero selects the default; negative disables retries.
	MaxRetries int
	// RequestsPerSecond throttles outgoing requests. Zero means unlimited.
	RequestsPerSecond float64
	UserAgent         string
}

// Client talks to one Elvis server. It is safe for concurrent use; the
// session is replaced atomically on login and reset on logout.
type Client struct {
	baseURL  *url.URL
	username string
	password string

	store      SessionStore
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	requestTimeout time.Duration
	maxRetries     int
	userAgent      string

	mu      sync.RWMutex
	session SessionState

	loginGroup singleflight.Group

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a client with the default file-backed session cache at
// cachePath. It is the short form of NewClient for the common case.
func New(baseURL, username, password, cachePath string) (*Client, error) {
	return NewClient(Config{
		BaseURL:      baseURL,
		Username:     username,
		Password:     password,
		SessionCache: cachePath,
	})
}

// NewClient creates a client from cfg. The base URL is normalized to end
// with a slash.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("elvis: base URL is required")
	}

	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("elvis: parsing base URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("elvis: base URL %q must be absolute", cfg.BaseURL)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	store := cfg.Store
	if store == nil {
		store = sessioncache.NewFileStore(cfg.SessionCache, logger)
	}

	c := &Client{
		baseURL:        u,
		username:       cfg.Username,
		password:       cfg.Password,
		store:          store,
		httpClient:     httpClient,
		logger:         logger,
		requestTimeout: cfg.RequestTimeout,
		maxRetries:     cfg.MaxRetries,
		userAgent:      cfg.UserAgent,
		session:        SessionState{Mode: NoAuth{}},
		sleepFunc:      timeSleep,
	}

	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}

	switch {
	case c.maxRetries == 0:
		c.maxRetries = defaultMaxRetries
	case c.maxRetries < 0:
		c.maxRetries = 0
	}

	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}

	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(math.Ceil(cfg.RequestsPerSecond)))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c, nil
}

// BaseURL returns the normalized base URL, always ending in "/".
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Session returns a snapshot of the current session state.
func (c *Client) Session() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session
}

func (c *Client) authMode() AuthMode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session.Mode
}

// endpoint resolves a service path (e.g. "services/search") or an absolute
// asset URL against the base URL.
func (c *Client) endpoint(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("elvis: parsing URL %q: %w", ref, err)
	}

	return c.baseURL.ResolveReference(u), nil
}

// outbound describes one logical request. body is replayable across
// retries; stream is sent once and disables retries.
type outbound struct {
	method      string
	target      *url.URL
	body        []byte
	stream      io.Reader
	contentType string
	// anonymous skips session augmentation.
	anonymous bool
}

// send executes req with authentication, rate limiting and retry applied.
// Non-2xx responses are returned, not converted to errors; the caller
// decides. The caller closes the response body.
func (c *Client) send(ctx context.Context, req outbound) (*http.Response, error) {
	// Query strings may carry credentials; only the path is logged.
	endpoint := req.target.Path

	retries := c.maxRetries
	if req.stream != nil {
		retries = 0
	}

	var attempt int

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{Method: req.method, Endpoint: endpoint, Err: err}
			}
		}

		reqID := uuid.NewString()

		resp, err := c.doOnce(ctx, req, reqID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TransportError{Method: req.method, Endpoint: endpoint, Err: ctx.Err()}
			}

			// *url.Error repeats the full URL, session id included.
			var urlErr *url.Error
			if errors.As(err, &urlErr) {
				err = urlErr.Err
			}

			// Only GETs are replayed after a lost response.
			if req.method == http.MethodGet && attempt < retries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", req.method),
					slog.String("endpoint", endpoint),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, &TransportError{Method: req.method, Endpoint: endpoint, Err: sleepErr}
				}

				attempt++

				continue
			}

			return nil, &TransportError{Method: req.method, Endpoint: endpoint, Err: err}
		}

		if isRetryable(resp.StatusCode) && attempt < retries {
			backoff := c.retryBackoff(resp, attempt)
			drainAndClose(resp.Body)

			c.logger.Warn("retrying after HTTP error",
				slog.String("method", req.method),
				slog.String("endpoint", endpoint),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, &TransportError{Method: req.method, Endpoint: endpoint, Err: err}
			}

			attempt++

			continue
		}

		c.logger.Debug("request completed",
			slog.String("method", req.method),
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", reqID),
		)

		return resp, nil
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, req outbound, reqID string) (*http.Response, error) {
	var body io.Reader = http.NoBody

	switch {
	case req.stream != nil:
		body = req.stream
	case req.body != nil:
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(requestIDHeader, reqID)
	httpReq.Header.Set("Accept", "application/json")

	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	if !req.anonymous {
		applyAuth(c.authMode(), httpReq)
	}

	return c.httpClient.Do(httpReq)
}

// applyAuth attaches the artifacts of mode to req.
func applyAuth(mode AuthMode, req *http.Request) {
	switch m := mode.(type) {
	case SessionCookie:
		if m.ID != "" {
			req.URL = withSessionID(req.URL, m.ID)
		}
	case CSRF:
		if m.Token != "" && m.Cookie != "" {
			req.Header.Set("Cookie", authCookieName+"="+m.Cookie)
			req.Header.Set(csrfHeader, m.Token)
		}
	}
}

// retryBackoff returns the backoff for a retryable response, preferring
// the server's Retry-After.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drainAndClose discards a bounded amount of body so the connection can be
// reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	const maxDrain = 64 * 1024
	_, _ = io.CopyN(io.Discard, body, maxDrain)
	body.Close()
}
