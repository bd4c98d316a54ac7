package kvdb

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// retryController re-issues rate limited calls. The budget is shared by
// every call on a client: N means N retries after the first attempt. It is
// restored to its initial value whenever a call completes without being
// rate limited, and when a call gives up. The pause between attempts is
// opts.Sleep, stretched to a longer Retry-After from the store.
type retryController struct {
	initial  int32
	budget   *atomic.Int32
	clock    clock.Clock
	observer Observer
}

func newRetryController(budget int, clk clock.Clock, observer Observer) *retryController {
	if budget < 0 {
		budget = 0
	}
	return &retryController{
		initial:  int32(budget),
		budget:   atomic.NewInt32(int32(budget)),
		clock:    clk,
		observer: observer,
	}
}

func (r *retryController) remaining() int {
	return int(r.budget.Load())
}

func (r *retryController) reset() {
	r.budget.Store(r.initial)
}

func (r *retryController) do(ctx context.Context, op string, opts *Options, call func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := call(ctx)
		if err == nil {
			r.reset()
			return nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return err
		}

		left := r.budget.Dec()
		if left < 0 {
			r.reset()
			return &RetryExhaustedError{Op: op, Attempts: attempt, Last: err}
		}
		delay := opts.sleep()
		var remote *RemoteError
		if errors.As(err, &remote) && remote.RetryAfter > delay {
			delay = remote.RetryAfter
		}
		r.observer.Observe(Event{Kind: EventRateLimited, Op: op, Remaining: int(left), Delay: delay, Err: err})
		if err := sleepContext(ctx, r.clock, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, clk clock.Clock, d time.Duration) error {
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
