// Package metrics exposes Prometheus collectors for kvdb clients and the
// sandbox server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

const namespace = "kvdb"

// ClientObserver counts client events. It implements kvdb.Observer.
type ClientObserver struct {
	events    *prometheus.CounterVec
	delay     prometheus.Histogram
	remaining prometheus.Gauge
	ping      *prometheus.GaugeVec
}

// NewClientObserver registers the client collectors on reg.
func NewClientObserver(reg prometheus.Registerer) (*ClientObserver, error) {
	o := &ClientObserver{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "events_total",
				Help:      "Counter of client events by kind and operation.",
			}, []string{"kind", "op"}),
		delay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "retry_delay_seconds",
				Help:      "Bucketed histogram of sleeps scheduled after rate limited calls.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			}),
		remaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "retry_budget_remaining",
				Help:      "Retry budget left after the last rate limited call.",
			}),
		ping: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "ping_latency_seconds",
				Help:      "Latency of the last ping by leg.",
			}, []string{"leg"}),
	}
	for _, c := range []prometheus.Collector{o.events, o.delay, o.remaining, o.ping} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *ClientObserver) Observe(e kvdb.Event) {
	o.events.WithLabelValues(e.Kind.String(), e.Op).Inc()
	if e.Kind == kvdb.EventRateLimited {
		o.delay.Observe(e.Delay.Seconds())
		o.remaining.Set(float64(e.Remaining))
	}
}

// ObserveLatency records the legs of a ping.
func (o *ClientObserver) ObserveLatency(l *kvdb.Latency) {
	if l == nil {
		return
	}
	o.ping.WithLabelValues("write").Set(l.Write.Seconds())
	o.ping.WithLabelValues("read").Set(l.Read.Seconds())
	o.ping.WithLabelValues("delete").Set(l.Delete.Seconds())
	o.ping.WithLabelValues("average").Set(l.Average.Seconds())
}

// HTTPMetrics instruments an HTTP handler.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the server collectors on reg.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sandbox",
				Name:      "requests_total",
				Help:      "Counter of handled requests by method and status code.",
			}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sandbox",
				Name:      "request_duration_seconds",
				Help:      "Bucketed histogram of request handling time (s).",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
			}, []string{"method"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Middleware records every request passing through next.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
