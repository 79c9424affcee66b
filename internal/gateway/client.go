// Package gateway is the single path by which deck talks to the task-board
// backend. Every call resolves to a decoded body, an explicit no-content
// result or a typed *Failure; a 401 triggers exactly one silent token
// refresh followed by exactly one retry.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/taskdeck/deck/internal/lockfile"
	"github.com/taskdeck/deck/internal/telemetry"
)

const (
	// DefaultBaseURL is the backend used when none is configured.
	DefaultBaseURL = "http://localhost:8000/api"

	// IdentityPath is the identity-check endpoint; a 401 there means
	// "signed out" and never triggers a refresh.
	IdentityPath = "/auth/me"

	// RefreshPath exchanges the refresh cookie for a new access cookie.
	RefreshPath = "/auth/refresh"

	// LogoutPath clears the auth cookies server side.
	LogoutPath = "/auth/logout"

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	maxResponseSize = 50 * 1024 * 1024
)

// Result tells a successful call with a body apart from one without.
type Result int

const (
	// OK means a 2xx response whose body (if any) was decoded into out.
	OK Result = iota
	// NoContent means a 204; out was left untouched.
	NoContent
)

func (r Result) String() string {
	if r == NoContent {
		return "no-content"
	}
	return "ok"
}

// Client talks to the backend over HTTP with cookie auth.
type Client struct {
	base        *url.URL
	httpClient  *http.Client
	logger      *slog.Logger
	sessionPath string
	newID       func() string

	// refreshes collapses concurrent refreshes into one exchange.
	refreshes singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc for requests. A cookie jar is attached to a copy
// of hc when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.httpClient = &cp
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSessionFile seeds the auth cookies from path and writes them back after
// every successful refresh.
func WithSessionFile(path string) Option {
	return func(c *Client) { c.sessionPath = path }
}

// WithTimeout sets a per-request timeout. Zero leaves it to the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client for baseURL (e.g. http://localhost:8000/api).
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{Transport: telemetry.WrapTransport(http.DefaultTransport)},
		logger:     slog.New(slog.DiscardHandler),
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	if c.sessionPath != "" {
		if err := c.loadSession(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// buildURL joins the base URL with an API path that may carry a query.
func (c *Client) buildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

// Do sends one request and decodes the response into out (when non-nil).
// A 401 on any path other than the identity and refresh endpoints triggers a
// single refresh; when it succeeds the original request is retried once.
// A failed refresh or a second 401 surfaces the 401 *Failure.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) (Result, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return OK, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	var (
		result  Result
		attempt int
	)
	op := func() error {
		attempt++
		sent, _ := c.Tokens()
		r, err := c.send(ctx, method, path, payload, out)
		if err == nil {
			result = r
			return nil
		}
		if attempt == 1 && IsAuth(err) && refreshable(path) {
			// Rotated by a refresh that finished after our request went out.
			if now, _ := c.Tokens(); now != sent {
				return err
			}
			if rerr := c.Refresh(ctx); rerr != nil {
				c.logger.Debug("token refresh failed", "path", path, "error", rerr)
				return backoff.Permanent(err)
			}
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return OK, err
	}
	return result, nil
}

func refreshable(path string) bool {
	p := path
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p != IdentityPath && p != RefreshPath
}

// send performs exactly one HTTP exchange.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, out interface{}) (Result, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reqBody)
	if err != nil {
		return OK, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := c.newID()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return OK, &TransportError{Method: method, Path: path, Err: err}
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return OK, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OK, parseFailure(resp.StatusCode, respBody)
	}
	if resp.StatusCode == http.StatusNoContent {
		return NoContent, nil
	}
	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return OK, fmt.Errorf("failed to parse %s %s response: %w", method, path, err)
		}
	}
	return OK, nil
}

// Refresh exchanges the refresh cookie for a new access cookie. It is called
// by Do on a 401 and is exported for `deck auth status`.
//
// Refresh tokens are single-use, so with a session file the exchange runs
// under a lock on it. Tokens another process rotated while we waited are
// adopted instead of spending our now-stale refresh token.
//
// Concurrent callers in one process share a single exchange.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, shared := c.refreshes.Do("refresh", func() (interface{}, error) {
		return nil, c.refreshSession(ctx)
	})
	if shared {
		c.logger.Debug("joined in-flight token refresh", "error", err)
	}
	return err
}

func (c *Client) refreshSession(ctx context.Context) error {
	if c.sessionPath == "" {
		return c.refresh(ctx)
	}
	lk, err := lockfile.Acquire(ctx, c.sessionPath+".lock")
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	defer func() { _ = lk.Release() }()

	if c.adoptRotatedSession() {
		c.logger.Debug("adopted session refreshed by another process")
		return nil
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	if err := c.saveSession(); err != nil {
		c.logger.Warn("failed to persist refreshed session", "error", err)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context) error {
	if _, err := c.send(ctx, http.MethodPost, RefreshPath, nil, nil); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Get decodes a GET of path into a fresh T. A 204 yields the zero T.
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	if _, err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
