package kvdb_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/mock"
)

func posInf() float64 { return math.Inf(1) }
func negInf() float64 { return math.Inf(-1) }
func nanValue() float64 { return math.NaN() }

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}

type eventLog struct {
	mu     sync.Mutex
	events []kvdb.Event
}

func (l *eventLog) Observe(e kvdb.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kind(k kvdb.EventKind) []kvdb.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []kvdb.Event
	for _, e := range l.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// advance runs fn while moving clk forward until fn returns.
func advance(clk *clock.Mock, step time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	for {
		select {
		case err := <-done:
			return err
		case <-time.After(time.Millisecond):
			clk.Add(step)
		}
	}
}

func TestRetryBudgetExhaustion(t *testing.T) {
	clk := clock.NewMock()
	events := &eventLog{}
	m := mock.New()
	c := kvdb.NewWithBackend(m, kvdb.WithClock(clk), kvdb.WithObserver(events), kvdb.WithRetryBudget(3))
	ctx := context.Background()

	m.InjectRateLimit(100)
	err := advance(clk, kvdb.DefaultSleep, func() error {
		_, err := c.Get(ctx, "k", nil)
		return err
	})
	require.ErrorIs(t, err, kvdb.ErrRetriesExhausted)
	var exhausted *kvdb.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 4, exhausted.Attempts)
	require.True(t, errors.Is(exhausted.Last, kvdb.ErrRateLimited))
	require.Equal(t, 4, m.Calls("get"))

	limited := events.kind(kvdb.EventRateLimited)
	require.Len(t, limited, 3)
	for i, e := range limited {
		require.Equal(t, 2-i, e.Remaining)
		require.Equal(t, kvdb.DefaultSleep, e.Delay)
	}
	require.NotEmpty(t, events.kind(kvdb.EventError))
	require.Equal(t, 3, c.RetryBudget())
}

func TestRetryBudgetResetsAfterSuccess(t *testing.T) {
	m := mock.New()
	c := kvdb.NewWithBackend(m, kvdb.WithRetryBudget(3))
	ctx := context.Background()
	fast := &kvdb.Options{Sleep: time.Millisecond}

	m.InjectRateLimit(2)
	require.NoError(t, c.Set(ctx, "k", 1, fast))
	require.Equal(t, 3, c.RetryBudget())
	require.Equal(t, 3, m.Calls("set"))

	// A budget of zero gives up on the first rate limit.
	strict := kvdb.NewWithBackend(m, kvdb.WithRetryBudget(0))
	m.InjectRateLimit(1)
	_, err := strict.Get(ctx, "k", fast)
	require.ErrorIs(t, err, kvdb.ErrRetriesExhausted)
	v, err := strict.Get(ctx, "k", fast)
	require.NoError(t, err)
	require.Equal(t, float64(1), v)
}

func TestRetryOnlyForRateLimits(t *testing.T) {
	m := mock.New()
	c := kvdb.NewWithBackend(m)
	boom := errors.New("boom")

	m.InjectError(boom, 1)
	_, err := c.Get(context.Background(), "k", nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, m.Calls("get"))
	require.Equal(t, kvdb.DefaultRetryBudget, c.RetryBudget())
}

func TestRetrySleepHonoursContext(t *testing.T) {
	clk := clock.NewMock()
	m := mock.New()
	c := kvdb.NewWithBackend(m, kvdb.WithClock(clk))
	ctx, cancel := context.WithCancel(context.Background())

	m.InjectRateLimit(1)
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", nil)
		done <- err
	}()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestZapObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := mock.New()
	c := kvdb.NewWithBackend(m, kvdb.WithLogger(zap.New(core)))
	ctx := context.Background()

	m.InjectRateLimit(1)
	require.NoError(t, c.Set(ctx, "k", 1, &kvdb.Options{Sleep: time.Millisecond}))
	require.NoError(t, m.SetRaw(ctx, "bad", []byte("{")))
	_, err := c.Get(ctx, "bad", nil)
	require.NoError(t, err)
	require.Error(t, c.Set(ctx, "k", kvdb.Undefined, nil))

	require.Equal(t, 1, logs.FilterMessage("client ready").Len())
	require.Equal(t, 1, logs.FilterMessage("rate limited, retrying").Len())
	require.Equal(t, 1, logs.FilterMessage("value is not JSON, returning raw string").Len())
	failed := logs.FilterMessage("operation failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	require.NotEmpty(t, logs.FilterField(zap.String("op", "set")).All())
}

func TestMultiObserver(t *testing.T) {
	var a, b eventLog
	obs := kvdb.MultiObserver{&a, nil, kvdb.ObserverFunc(b.Observe), kvdb.NopObserver{}}
	obs.Observe(kvdb.Event{Kind: kvdb.EventReady})
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	require.Equal(t, "rate_limited", kvdb.EventRateLimited.String())
}
