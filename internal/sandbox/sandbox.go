// Package sandbox serves the remote key-value protocol over a local store so
// clients can be developed without the hosted database. Latency, failures and
// rate limits can be injected per request.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ratio1/kvdb_sdk_go/internal/config"
	"github.com/Ratio1/kvdb_sdk_go/internal/devseed"
	"github.com/Ratio1/kvdb_sdk_go/internal/kvwire"
	"github.com/Ratio1/kvdb_sdk_go/internal/metrics"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

// MetricsPath is reserved for Prometheus metrics when a registry is set.
const MetricsPath = "/metrics"

// Options tunes the fault injection of a sandbox handler.
type Options struct {
	// Latency delays every store request.
	Latency time.Duration
	// Fail answers a random fraction of store requests with an error status.
	Fail config.FailSpec
	// RateLimit caps store requests per second; excess requests get a 429.
	// Zero disables limiting.
	RateLimit float64
	Burst     int
	Logger    *zap.Logger
	// Registry enables MetricsPath.
	Registry *prometheus.Registry
	// Rand returns values in [0, 1) for failure injection.
	Rand func() float64
}

type server struct {
	store kvdb.Backend
	log   *zap.Logger
}

// New returns a handler speaking the remote protocol over store:
//
//	GET    /?prefix=p[&encode=true]  newline separated keys
//	GET    /<escaped key>            stored value, 404 when absent
//	POST   /  (form key=value)       store every pair
//	DELETE /<escaped key>            remove, 204 even when absent
func New(store kvdb.Backend, opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{store: store, log: logger.Named("sandbox")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if opts.Registry != nil {
		hm, err := metrics.NewHTTPMetrics(opts.Registry)
		if err != nil {
			return nil, fmt.Errorf("sandbox: metrics: %w", err)
		}
		r.Use(hm.Middleware)
		r.Method(http.MethodGet, MetricsPath, metrics.Handler(opts.Registry))
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			burst := opts.Burst
			if burst < 1 {
				burst = 1
			}
			r.Use(limit(rate.NewLimiter(rate.Limit(opts.RateLimit), burst)))
		}
		if opts.Latency > 0 {
			r.Use(delay(opts.Latency))
		}
		if opts.Fail.Rate > 0 {
			rnd := opts.Rand
			if rnd == nil {
				rnd = rand.Float64
			}
			r.Use(fail(opts.Fail, rnd))
		}
		r.Get("/", s.list)
		r.Post("/", s.set)
		r.Get("/*", s.get)
		r.Delete("/*", s.delete)
	})
	return r, nil
}

// Seed writes entries into store.
func Seed(ctx context.Context, store kvdb.Backend, entries []devseed.Entry) error {
	for _, e := range entries {
		if err := store.SetRaw(ctx, e.Key, e.Value); err != nil {
			return fmt.Errorf("sandbox: seed %q: %w", e.Key, err)
		}
	}
	return nil
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keys, err := s.store.ListKeys(r.Context(), q.Get("prefix"))
	if err != nil {
		s.storeError(w, "list", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if q.Get("encode") == "true" {
		_, _ = w.Write(kvwire.EncodeKeyList(keys))
		return
	}
	_, _ = io.WriteString(w, strings.Join(keys, "\n"))
}

func (s *server) set(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		if err := s.store.SetRaw(r.Context(), key, []byte(values[len(values)-1])); err != nil {
			s.storeError(w, "set", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	raw, err := s.store.GetRaw(r.Context(), key)
	if err != nil {
		s.storeError(w, "get", err)
		return
	}
	if raw == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(raw)
}

func (s *server) delete(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), key); err != nil {
		s.storeError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// storeError answers with the status of a remote error, or 500.
func (s *server) storeError(w http.ResponseWriter, op string, err error) {
	code := http.StatusInternalServerError
	var remote *kvdb.RemoteError
	if errors.As(err, &remote) {
		code = remote.StatusCode
	}
	s.log.Error("store failed", zap.String("op", op), zap.Int("status", code), zap.Error(err))
	http.Error(w, err.Error(), code)
}

// pathKey decodes the key from the escaped request path so that an escaped
// slash stays part of the key.
func pathKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := kvwire.UnescapeKey(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		http.Error(w, "malformed key", http.StatusBadRequest)
		return "", false
	}
	return key, true
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.EscapedPath()),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func limit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func delay(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-r.Context().Done():
				return
			case <-t.C:
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fail(spec config.FailSpec, rnd func() float64) func(http.Handler) http.Handler {
	code := spec.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rnd() < spec.Rate {
				http.Error(w, "failure injected", code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
