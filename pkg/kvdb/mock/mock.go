// Package mock provides an in-memory kvdb.Backend for tests, examples and
// the sandbox server.
package mock

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/Ratio1/kvdb_sdk_go/internal/devseed"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

// Mock is an in-memory key-value store. Keys are listed in lexical order.
type Mock struct {
	mu    sync.RWMutex
	items map[string][]byte

	rateLimited atomic.Int32
	failNext    atomic.Int32
	failErr     atomic.Error
	calls       sync.Map // op -> *atomic.Int64
	onCall      func(op, key string)
}

var _ kvdb.Backend = (*Mock)(nil)

// Option configures the mock instance.
type Option func(*Mock)

// WithOnCall registers a hook run at the start of every backend call, e.g. to
// advance a mock clock.
func WithOnCall(fn func(op, key string)) Option {
	return func(m *Mock) {
		m.onCall = fn
	}
}

// New creates an empty mock store.
func New(opts ...Option) *Mock {
	m := &Mock{items: make(map[string][]byte)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed loads entries, typically decoded via devseed.Load.
func (m *Mock) Seed(entries []devseed.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		data := append([]byte(nil), e.Value...)
		if len(data) == 0 {
			return fmt.Errorf("mock kvdb: seed entry %q has no value", e.Key)
		}
		m.items[e.Key] = data
	}
	return nil
}

// InjectRateLimit makes the next n calls fail with a 429 error.
func (m *Mock) InjectRateLimit(n int) {
	m.rateLimited.Store(int32(n))
}

// InjectError makes the next n calls fail with err.
func (m *Mock) InjectError(err error, n int) {
	m.failErr.Store(err)
	m.failNext.Store(int32(n))
}

// Calls reports how many times op ("get", "set", "delete", "list") was
// invoked, including failed calls.
func (m *Mock) Calls(op string) int {
	v, ok := m.calls.Load(op)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}

// Len returns the number of stored keys.
func (m *Mock) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Snapshot returns a copy of every stored value.
func (m *Mock) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.items))
	for k, v := range m.items {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func (m *Mock) enter(ctx context.Context, op, key string) error {
	counter, _ := m.calls.LoadOrStore(op, atomic.NewInt64(0))
	counter.(*atomic.Int64).Inc()
	if m.onCall != nil {
		m.onCall(op, key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.rateLimited.Load() > 0 && m.rateLimited.Dec() >= 0 {
		return &kvdb.RemoteError{Op: op, StatusCode: http.StatusTooManyRequests, Body: "rate limited"}
	}
	if m.failNext.Load() > 0 && m.failNext.Dec() >= 0 {
		return m.failErr.Load()
	}
	return nil
}

func (m *Mock) GetRaw(ctx context.Context, key string) ([]byte, error) {
	if err := m.enter(ctx, "get", key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *Mock) SetRaw(ctx context.Context, key string, raw []byte) error {
	if err := m.enter(ctx, "set", key); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("mock kvdb: empty value for %q", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), raw...)
	return nil
}

func (m *Mock) Delete(ctx context.Context, key string) error {
	if err := m.enter(ctx, "delete", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Mock) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := m.enter(ctx, "list", prefix); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
