package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// RetryPolicy controls the retry behaviour for transport failures. Rate
// limited responses (429) are never retried here: they are returned to the
// caller as an HTTPError so a higher layer can apply its own budget.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
}

// DefaultRetryPolicy implements a conservative retry strategy.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   2 * time.Second,
	Jitter:     0.25,
}

// NoRetry disables transport-level retries entirely.
var NoRetry = RetryPolicy{MaxRetries: 0}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used by the helper.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHeaders assigns default headers added to every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		for k, values := range h {
			for _, v := range values {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithRetryPolicy overrides the default retry configuration.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithClock replaces the clock used for retry sleeps.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger attaches a logger for transport retries.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client wraps http.Client providing retry and base URL utilities.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	headers     http.Header
	retryPolicy RetryPolicy
	clock       clock.Clock
	logger      *zap.Logger
}

// Request describes a single outbound request. Path is appended to the base
// URL path and must already be escaped. Body is read once and replayed on
// every retry.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   io.Reader
}

// NewClient creates a Client rooted at baseURL, which must be absolute.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("httpx: base URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("httpx: invalid base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("httpx: invalid base URL %q: scheme and host are required", baseURL)
	}

	c := &Client{
		baseURL:     parsed,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		headers:     make(http.Header),
		retryPolicy: DefaultRetryPolicy,
		clock:       clock.New(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retryPolicy = c.retryPolicy.normalized()
	return c, nil
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

// BaseURL returns the base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do executes req, retrying transport failures and retryable statuses
// according to the policy. Any status >= 400 that is not retried comes back
// as an *HTTPError.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	switch {
	case req == nil:
		return nil, errors.New("httpx: request is nil")
	case req.Method == "":
		return nil, errors.New("httpx: HTTP method is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var payload []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("httpx: read request body: %w", err)
		}
		payload = data
	}

	target := c.buildURL(req.Path, req.Query)
	backoff := c.retryPolicy.backoff()
	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, req, target, payload)
		if err == nil {
			return resp, nil
		}
		if attempt >= c.retryPolicy.MaxRetries || !retryable(err) {
			return nil, err
		}
		delay := backoff.Delay(attempt)
		c.logger.Debug("retrying request",
			zap.String("method", req.Method),
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// send performs one round trip.
func (c *Client) send(ctx context.Context, req *Request, target string, payload []byte) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = c.headers.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}
	return resp, nil
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// buildURL appends path to the base URL path, keeping any base path segments
// (e.g. a database token) intact.
func (c *Client) buildURL(path string, q url.Values) string {
	full := strings.TrimRight(c.baseURL.String(), "/")
	if c.baseURL.RawQuery != "" {
		full = strings.TrimRight(strings.SplitN(full, "?", 2)[0], "/")
	}
	if path = strings.TrimLeft(path, "/"); path != "" {
		full += "/" + path
	}
	if len(q) > 0 {
		full += "?" + q.Encode()
	}
	return full
}

func statusError(resp *http.Response) error {
	body, err := ReadAllAndClose(resp.Body)
	if err != nil {
		return fmt.Errorf("httpx: read error body: %w", err)
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header.Clone(),
	}
}

// FormBody encodes values as an application/x-www-form-urlencoded payload.
func FormBody(values url.Values) (io.Reader, string) {
	return strings.NewReader(values.Encode()), "application/x-www-form-urlencoded"
}

// ReadAllAndClose drains rc and closes it.
func ReadAllAndClose(rc io.ReadCloser) ([]byte, error) {
	if rc == nil {
		return nil, nil
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
