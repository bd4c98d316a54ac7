package sandbox

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Ratio1/kvdb_sdk_go/internal/config"
	"github.com/Ratio1/kvdb_sdk_go/internal/devseed"
	"github.com/Ratio1/kvdb_sdk_go/internal/httpx"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/mock"
)

func startSandbox(t *testing.T, store kvdb.Backend, opts Options) *httptest.Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	h, err := New(store, opts)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, opts ...kvdb.Option) *kvdb.Client {
	t.Helper()
	opts = append([]kvdb.Option{kvdb.WithTransportRetry(httpx.NoRetry)}, opts...)
	c, err := kvdb.New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func fetch(t *testing.T, method, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestClientAgainstSandbox(t *testing.T) {
	store := mock.New()
	srv := startSandbox(t, store, Options{})
	c := newClient(t, srv)
	ctx := context.Background()

	const odd = "team/a b+c&d=é"
	require.NoError(t, c.Set(ctx, odd, map[string]any{"n": 1}, nil))
	require.NoError(t, c.Set(ctx, "team/z", "plain", nil))
	require.NoError(t, c.Set(ctx, "other", []int{1, 2}, nil))
	require.Equal(t, `{"n":1}`, string(store.Snapshot()[odd]))

	v, err := c.Get(ctx, odd, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"n": 1.0}, v)

	missing, err := c.Get(ctx, "absent", nil)
	require.NoError(t, err)
	require.Nil(t, missing)

	keys, err := c.ListKeys(ctx, "team/", 0)
	require.NoError(t, err)
	require.Equal(t, []string{odd, "team/z"}, keys)

	n, err := c.Add(ctx, "counter", 2)
	require.NoError(t, err)
	require.Equal(t, 2.0, n)

	records, err := c.StartsWith(ctx, "team/", nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, c.Delete(ctx, "team/z", nil))
	require.NoError(t, c.Delete(ctx, "team/z", nil))
	ok, err := c.Exists(ctx, "team/z")
	require.NoError(t, err)
	require.False(t, ok)

	lat, err := c.Ping(ctx)
	require.NoError(t, err)
	require.NotNil(t, lat)

	cleared, err := c.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, cleared)
	require.Zero(t, store.Len())
}

func TestListingFormats(t *testing.T) {
	store := mock.New()
	require.NoError(t, Seed(context.Background(), store, []devseed.Entry{
		{Key: "a/1", Value: []byte(`1`)},
		{Key: "a 2", Value: []byte(`"x"`)},
		{Key: "b", Value: []byte(`true`)},
	}))
	srv := startSandbox(t, store, Options{})

	code, body := fetch(t, http.MethodGet, srv.URL+"/?prefix=a&encode=true")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "a%202\na%2F1", body)

	_, body = fetch(t, http.MethodGet, srv.URL+"/?prefix=a")
	require.Equal(t, "a 2\na/1", body)

	code, body = fetch(t, http.MethodGet, srv.URL+"/a%2F1")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1", body)

	code, _ = fetch(t, http.MethodGet, srv.URL+"/nope")
	require.Equal(t, http.StatusNotFound, code)
}

func TestRateLimitAnswers429(t *testing.T) {
	srv := startSandbox(t, mock.New(), Options{RateLimit: 0.001, Burst: 1})
	c := newClient(t, srv, kvdb.WithRetryBudget(0))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, nil))
	_, err := c.Get(ctx, "k", &kvdb.Options{Sleep: time.Millisecond})
	require.ErrorIs(t, err, kvdb.ErrRetriesExhausted)
	require.ErrorAs(t, err, new(*kvdb.RetryExhaustedError))
}

func TestFailureInjection(t *testing.T) {
	srv := startSandbox(t, mock.New(), Options{
		Fail: config.FailSpec{Rate: 0.5, Code: http.StatusServiceUnavailable},
		Rand: func() float64 { return 0.1 },
	})
	c := newClient(t, srv)

	err := c.Set(context.Background(), "k", 1, nil)
	var remote *kvdb.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, http.StatusServiceUnavailable, remote.StatusCode)
	require.NotErrorIs(t, err, kvdb.ErrRateLimited)
}

func TestStoreRateLimitPassesThrough(t *testing.T) {
	store := mock.New()
	srv := startSandbox(t, store, Options{})
	c := newClient(t, srv)

	store.InjectRateLimit(1)
	require.NoError(t, c.Set(context.Background(), "k", 1, &kvdb.Options{Sleep: time.Millisecond}))
	require.Equal(t, 2, store.Calls("set"))
}

func TestLatency(t *testing.T) {
	srv := startSandbox(t, mock.New(), Options{Latency: 30 * time.Millisecond})
	start := time.Now()
	code, _ := fetch(t, http.MethodGet, srv.URL+"/k")
	require.Equal(t, http.StatusNotFound, code)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := startSandbox(t, mock.New(), Options{Registry: reg, Fail: config.FailSpec{Rate: 1, Code: 500}})

	code, _ := fetch(t, http.MethodGet, srv.URL+"/k")
	require.Equal(t, http.StatusInternalServerError, code)

	code, body := fetch(t, http.MethodGet, srv.URL+MetricsPath)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `kvdb_sandbox_requests_total{code="500",method="GET"} 1`)
}
