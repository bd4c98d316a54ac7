package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/mock"
)

func TestClientObserverCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewClientObserver(reg)
	require.NoError(t, err)

	obs.Observe(kvdb.Event{Kind: kvdb.EventDebug, Op: "get"})
	obs.Observe(kvdb.Event{Kind: kvdb.EventDebug, Op: "get"})
	obs.Observe(kvdb.Event{Kind: kvdb.EventRateLimited, Op: "get", Remaining: 2, Delay: 200 * time.Millisecond})
	obs.Observe(kvdb.Event{Kind: kvdb.EventError, Op: "set", Err: errors.New("boom")})

	require.Equal(t, 2.0, testutil.ToFloat64(obs.events.WithLabelValues("debug", "get")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.events.WithLabelValues("rate_limited", "get")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.events.WithLabelValues("error", "set")))
	require.Equal(t, 2.0, testutil.ToFloat64(obs.remaining))
	require.Equal(t, 1, testutil.CollectAndCount(obs.delay))

	_, err = NewClientObserver(reg)
	require.Error(t, err, "registering twice must fail")
}

func TestClientObserverWithClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewClientObserver(reg)
	require.NoError(t, err)

	m := mock.New()
	c := kvdb.NewWithBackend(m, kvdb.WithObserver(obs))
	m.InjectRateLimit(1)
	require.NoError(t, c.Set(context.Background(), "k", 1, &kvdb.Options{Sleep: time.Millisecond}))

	require.Equal(t, 1.0, testutil.ToFloat64(obs.events.WithLabelValues("ready", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.events.WithLabelValues("debug", "set")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.events.WithLabelValues("rate_limited", "set")))

	obs.ObserveLatency(&kvdb.Latency{Write: time.Second, Average: 500 * time.Millisecond})
	obs.ObserveLatency(nil)
	require.Equal(t, 1.0, testutil.ToFloat64(obs.ping.WithLabelValues("write")))
	require.Equal(t, 0.5, testutil.ToFloat64(obs.ping.WithLabelValues("average")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	hm, err := NewHTTPMetrics(reg)
	require.NoError(t, err)

	h := hm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	for _, method := range []string{http.MethodGet, http.MethodGet, http.MethodDelete} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, "/", nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(hm.requests.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(hm.requests.WithLabelValues("DELETE", "429")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "kvdb_sandbox_requests_total"))
}
