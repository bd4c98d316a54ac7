package kvdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ratio1/kvdb_sdk_go/internal/httpx"
	"github.com/Ratio1/kvdb_sdk_go/internal/kvwire"
)

// EnvURL names the environment variable consulted when New is given no URL.
const EnvURL = "REPLIT_DB_URL"

// Backend is the raw storage a Client runs on. GetRaw returns nil bytes for
// absent keys. Rate limited calls must return an error matching
// ErrRateLimited.
type Backend interface {
	GetRaw(ctx context.Context, key string) ([]byte, error)
	SetRaw(ctx context.Context, key string, raw []byte) error
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Client talks to a key-value store over its HTTP protocol, or to any
// Backend. It is safe for concurrent use.
type Client struct {
	backend       Backend
	baseURL       string
	retry         *retryController
	observer      Observer
	clock         clock.Clock
	createdAt     time.Time
	concurrency   int
	importStagger time.Duration
}

type config struct {
	httpOpts      []httpx.Option
	retryBudget   int
	clock         clock.Clock
	observers     []Observer
	concurrency   int
	importStagger time.Duration
}

// Option configures a Client.
type Option func(*config)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) { c.httpOpts = append(c.httpOpts, httpx.WithHTTPClient(h)) }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.httpOpts = append(c.httpOpts, httpx.WithTimeout(d)) }
}

// WithHeaders adds headers to every request.
func WithHeaders(h http.Header) Option {
	return func(c *config) { c.httpOpts = append(c.httpOpts, httpx.WithHeaders(h)) }
}

// WithTransportRetry sets the retry policy for network errors and 5xx
// responses. Rate limits are handled by the retry budget instead.
func WithTransportRetry(policy httpx.RetryPolicy) Option {
	return func(c *config) { c.httpOpts = append(c.httpOpts, httpx.WithRetryPolicy(policy)) }
}

// WithRetryBudget sets how many consecutive rate-limit retries are allowed.
func WithRetryBudget(n int) Option {
	return func(c *config) { c.retryBudget = n }
}

// WithClock replaces the clock used for sleeps and latency measurements.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithObserver registers an event observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLogger logs client events and transport retries to l.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l == nil {
			return
		}
		c.observers = append(c.observers, NewZapObserver(l))
		c.httpOpts = append(c.httpOpts, httpx.WithLogger(l.Named("httpx")))
	}
}

// WithConcurrency bounds the parallel requests of bulk operations.
func WithConcurrency(n int) Option {
	return func(c *config) { c.concurrency = n }
}

// WithImportStagger sets the spacing between writes issued by Import.
// Zero disables staggering.
func WithImportStagger(d time.Duration) Option {
	return func(c *config) { c.importStagger = d }
}

func newConfig(opts []Option) *config {
	cfg := &config{
		retryBudget:   DefaultRetryBudget,
		clock:         clock.New(),
		concurrency:   DefaultConcurrency,
		importStagger: DefaultImportStagger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = 1
	}
	if cfg.importStagger < 0 {
		cfg.importStagger = 0
	}
	return cfg
}

// New returns a Client bound to baseURL. An empty baseURL falls back to the
// REPLIT_DB_URL environment variable.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv(EnvURL))
	}
	if baseURL == "" {
		return nil, ErrNoURL
	}

	cfg := newConfig(opts)
	httpOpts := append([]httpx.Option{httpx.WithClock(cfg.clock)}, cfg.httpOpts...)
	cl, err := httpx.NewClient(baseURL, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("kvdb: %w", err)
	}
	return newClient(&httpBackend{client: cl}, cl.BaseURL(), cfg), nil
}

// NewWithBackend returns a Client running on b, e.g. an in-memory store.
func NewWithBackend(b Backend, opts ...Option) *Client {
	return newClient(b, "", newConfig(opts))
}

func newClient(b Backend, baseURL string, cfg *config) *Client {
	var observer Observer = NopObserver{}
	switch len(cfg.observers) {
	case 0:
	case 1:
		observer = cfg.observers[0]
	default:
		observer = MultiObserver(cfg.observers)
	}

	c := &Client{
		backend:       b,
		baseURL:       baseURL,
		retry:         newRetryController(cfg.retryBudget, cfg.clock, observer),
		observer:      observer,
		clock:         cfg.clock,
		createdAt:     cfg.clock.Now(),
		concurrency:   cfg.concurrency,
		importStagger: cfg.importStagger,
	}
	observer.Observe(Event{Kind: EventReady, BaseURL: baseURL})
	return c
}

// BaseURL returns the store URL, or "" for clients built on a Backend.
func (c *Client) BaseURL() string { return c.baseURL }

// CreatedAt reports when the client was constructed.
func (c *Client) CreatedAt() time.Time { return c.createdAt }

// RetryBudget returns the rate-limit retries currently available.
func (c *Client) RetryBudget() int { return c.retry.remaining() }

func (c *Client) begin(op, key string) {
	c.observer.Observe(Event{Kind: EventDebug, Op: op, Key: key, OpID: uuid.NewString(), Message: "operation started"})
}

func (c *Client) fail(op, key string, err error) error {
	if err != nil {
		c.observer.Observe(Event{Kind: EventError, Op: op, Key: key, Err: err})
	}
	return err
}

// Get returns the value stored at key, decoded from JSON, or nil when the
// key is absent. With opts.Raw the undecoded string is returned. A stored
// value that is not valid JSON is returned as its raw string.
func (c *Client) Get(ctx context.Context, key string, opts *Options) (any, error) {
	c.begin("get", key)
	v, err := c.get(ctx, key, opts)
	return v, c.fail("get", key, err)
}

// Set stores value at key as JSON.
func (c *Client) Set(ctx context.Context, key string, value any, opts *Options) error {
	c.begin("set", key)
	return c.fail("set", key, c.set(ctx, key, value, opts))
}

// Delete removes key. Deleting an absent key succeeds.
func (c *Client) Delete(ctx context.Context, key string, opts *Options) error {
	c.begin("delete", key)
	err := c.retry.do(ctx, "delete", opts, func(ctx context.Context) error {
		return c.backend.Delete(ctx, key)
	})
	return c.fail("delete", key, err)
}

// ListKeys returns the keys starting with prefix in store order, truncated
// to limit when it is positive.
func (c *Client) ListKeys(ctx context.Context, prefix string, limit int) ([]string, error) {
	c.begin("list", prefix)
	keys, err := c.list(ctx, prefix, &Options{Limit: limit})
	return keys, c.fail("list", prefix, err)
}

// Exists reports whether key holds a value, including null, 0, false or "".
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	c.begin("exists", key)
	raw, err := c.getRaw(ctx, "exists", key, nil)
	if err != nil {
		return false, c.fail("exists", key, err)
	}
	return raw != nil, nil
}

// TypeOf names the type of the value at key, or TypeUndefined when absent.
// Values that are not valid JSON report TypeString, matching Get.
func (c *Client) TypeOf(ctx context.Context, key string) (ValueType, error) {
	c.begin("typeof", key)
	raw, err := c.getRaw(ctx, "typeof", key, nil)
	if err != nil {
		return "", c.fail("typeof", key, err)
	}
	if raw == nil {
		return TypeUndefined, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return TypeString, nil
	}
	return typeOf(v), nil
}

// GetAs decodes the value at key into T. It returns nil for absent keys and
// a *ParseError when the stored value does not decode into T.
func GetAs[T any](ctx context.Context, c *Client, key string, opts *Options) (*T, error) {
	if c == nil {
		return nil, errors.New("kvdb: client is nil")
	}
	c.begin("get", key)
	raw, err := c.getRaw(ctx, "get", key, opts)
	if err != nil {
		return nil, c.fail("get", key, err)
	}
	if raw == nil {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, c.fail("get", key, &ParseError{Key: key, Err: err})
	}
	return &out, nil
}

func (c *Client) getRaw(ctx context.Context, op, key string, opts *Options) ([]byte, error) {
	var raw []byte
	err := c.retry.do(ctx, op, opts, func(ctx context.Context) error {
		var err error
		raw, err = c.backend.GetRaw(ctx, key)
		return err
	})
	return raw, err
}

func (c *Client) get(ctx context.Context, key string, opts *Options) (any, error) {
	raw, err := c.getRaw(ctx, "get", key, opts)
	if err != nil || raw == nil {
		return nil, err
	}
	return c.decode(key, raw, opts), nil
}

// decode turns a stored value into its Go form: the raw string with
// opts.Raw or when the value is not JSON, the decoded JSON otherwise.
func (c *Client) decode(key string, raw []byte, opts *Options) any {
	if opts.raw() {
		return string(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		c.observer.Observe(Event{
			Kind:    EventDebug,
			Op:      "get",
			Key:     key,
			Err:     &ParseError{Key: key, Err: err},
			Message: "value is not JSON, returning raw string",
		})
		return string(raw)
	}
	return v
}

func (c *Client) set(ctx context.Context, key string, value any, opts *Options) error {
	raw, err := encodeValue("set", value)
	if err != nil {
		return err
	}
	return c.retry.do(ctx, "set", opts, func(ctx context.Context) error {
		return c.backend.SetRaw(ctx, key, raw)
	})
}

func (c *Client) list(ctx context.Context, prefix string, opts *Options) ([]string, error) {
	var keys []string
	err := c.retry.do(ctx, "list", opts, func(ctx context.Context) error {
		var err error
		keys, err = c.backend.ListKeys(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	if n := opts.limit(); n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys, nil
}

func typeOf(v any) ValueType {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case float64:
		return TypeNumber
	case string:
		return TypeString
	case []any:
		return TypeArray
	default:
		return TypeObject
	}
}

type httpBackend struct {
	client *httpx.Client
}

func (b *httpBackend) GetRaw(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   kvwire.EscapeKey(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, remoteError("get", err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kvdb: get: read body: %w", err)
	}
	return kvwire.TrimValue(data), nil
}

func (b *httpBackend) SetRaw(ctx context.Context, key string, raw []byte) error {
	body, contentType := httpx.FormBody(kvwire.SetForm(key, raw))
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {contentType}},
		Body:   body,
	})
	if err != nil {
		return remoteError("set", err)
	}
	_, _ = httpx.ReadAllAndClose(resp.Body)
	return nil
}

func (b *httpBackend) Delete(ctx context.Context, key string) error {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodDelete,
		Path:   kvwire.EscapeKey(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return remoteError("delete", err)
	}
	_, _ = httpx.ReadAllAndClose(resp.Body)
	return nil
}

func (b *httpBackend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Query:  kvwire.ListQuery(prefix),
	})
	if err != nil {
		return nil, remoteError("list", err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kvdb: list: read body: %w", err)
	}
	keys, err := kvwire.DecodeKeyList(data)
	if err != nil {
		return nil, fmt.Errorf("kvdb: list: %w", err)
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var httpErr *httpx.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

func remoteError(op string, err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		remote := &RemoteError{Op: op, StatusCode: httpErr.StatusCode, Body: strings.TrimSpace(string(httpErr.Body))}
		if httpErr.RateLimited() {
			remote.RetryAfter = httpErr.RetryAfter()
		}
		return remote
	}
	return fmt.Errorf("kvdb: %s: %w", op, err)
}
