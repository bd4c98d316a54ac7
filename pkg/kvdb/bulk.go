package kvdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Setter is a destination for exported records. *Client satisfies it.
type Setter interface {
	Set(ctx context.Context, key string, value any, opts *Options) error
}

// Clear deletes every key and returns how many were removed. It keeps going
// past individual failures and returns them combined.
func (c *Client) Clear(ctx context.Context) (int, error) {
	c.begin("clear", "")
	keys, err := c.list(ctx, "", nil)
	if err != nil {
		return 0, c.fail("clear", "", err)
	}

	var (
		deleted atomic.Int64
		mu      sync.Mutex
		errs    error
		g       errgroup.Group
	)
	g.SetLimit(c.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			err := c.retry.do(ctx, "delete", nil, func(ctx context.Context) error {
				return c.backend.Delete(ctx, key)
			})
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
				return nil
			}
			deleted.Inc()
			return nil
		})
	}
	_ = g.Wait()
	return int(deleted.Load()), c.fail("clear", "", errs)
}

// Import validates every record, then writes them spaced out by the import
// stagger with bounded concurrency. It returns once every write finished.
// Validation failures abort before anything is written; write failures are
// reported per record in the result.
func (c *Client) Import(ctx context.Context, records []Record, opts *Options) (*ImportResult, error) {
	c.begin("import", "")
	for i, rec := range records {
		if rec.ID == "" {
			return nil, c.fail("import", "", invalid("import", fmt.Sprintf("records[%d].id", i), ErrDataImport))
		}
		if rec.Data == nil {
			return nil, c.fail("import", rec.ID, invalid("import", fmt.Sprintf("records[%d].data", i), ErrDataImport))
		}
		if err := checkValue("import", rec.Data); err != nil {
			return nil, c.fail("import", rec.ID, err)
		}
	}
	return c.writeAll(ctx, records, opts, c.importStagger)
}

// ImportJSON reads a JSON array of {"id": ..., "data": ...} records from r and
// imports them. Dumps that name the key "ID" are accepted too.
func (c *Client) ImportJSON(ctx context.Context, r io.Reader, opts *Options) (*ImportResult, error) {
	var payload any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, c.fail("import", "", &ValidationError{Op: "import", Arg: "data", Err: ErrDataType, Cause: err})
	}
	items, ok := payload.([]any)
	if !ok {
		return nil, c.fail("import", "", invalid("import", "data", ErrDataType))
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, c.fail("import", "", invalid("import", fmt.Sprintf("records[%d]", i), ErrDataImport))
		}
		id, present := obj["id"]
		if !present {
			id, present = obj["ID"]
		}
		if !present {
			return nil, c.fail("import", "", invalid("import", fmt.Sprintf("records[%d].id", i), ErrDataImport))
		}
		if !IsValidKey(id) {
			return nil, c.fail("import", "", invalid("import", fmt.Sprintf("records[%d].id", i), ErrInvalidKey))
		}
		records = append(records, Record{ID: id.(string), Data: obj["data"]})
	}
	return c.Import(ctx, records, opts)
}

// SetMany writes every record with bounded concurrency and no staggering.
// Unlike Import, a null value is stored as JSON null.
func (c *Client) SetMany(ctx context.Context, records []Record, opts *Options) (*ImportResult, error) {
	c.begin("setMany", "")
	for i, rec := range records {
		if err := checkValue("setMany", rec.Data); err != nil {
			return nil, c.fail("setMany", rec.ID, &ValidationError{
				Op: "setMany", Arg: fmt.Sprintf("records[%d].data", i), Err: ErrInvalidValue,
			})
		}
	}
	return c.writeAll(ctx, records, opts, 0)
}

func (c *Client) writeAll(ctx context.Context, records []Record, opts *Options, stagger time.Duration) (*ImportResult, error) {
	result := &ImportResult{Results: make([]RecordResult, len(records))}
	if len(records) == 0 {
		return result, nil
	}

	var limiter *rate.Limiter
	if stagger > 0 {
		limiter = rate.NewLimiter(rate.Every(stagger), 1)
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, rec := range records {
		result.Results[i].ID = rec.ID
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				result.Results[i].Err = err
				continue
			}
		}
		g.Go(func() error {
			result.Results[i].Err = c.set(ctx, rec.ID, rec.Data, opts)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range result.Failed() {
		c.observer.Observe(Event{Kind: EventError, Op: "import", Key: res.ID, Err: res.Err})
	}
	return result, nil
}

// ExportTo copies every record to dst in listing order and returns how many
// were written. It stops at the first failed write.
func (c *Client) ExportTo(ctx context.Context, dst Setter) (int, error) {
	c.begin("export", "")
	records, err := c.all(ctx, "", nil)
	if err != nil {
		return 0, c.fail("export", "", err)
	}
	for i, rec := range records {
		if err := dst.Set(ctx, rec.ID, rec.Data, nil); err != nil {
			return i, c.fail("export", rec.ID, fmt.Errorf("kvdb: export %q: %w", rec.ID, err))
		}
	}
	return len(records), nil
}
