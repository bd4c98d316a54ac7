package kvdb

import (
	"context"
	"reflect"

	"golang.org/x/sync/errgroup"
)

type mathOp func(x, y float64) float64

var mathOps = map[string]mathOp{
	"+": func(x, y float64) float64 { return x + y },
	"-": func(x, y float64) float64 { return x - y },
	"*": func(x, y float64) float64 { return x * y },
	"/": func(x, y float64) float64 { return x / y },
}

var mathAliases = map[string]string{
	"add":      "+",
	"sub":      "-",
	"subtract": "-",
	"mul":      "*",
	"multiply": "*",
	"div":      "/",
	"divide":   "/",
}

// lookupMathOp matches operator exactly; "Add" or " + " are unknown.
func lookupMathOp(operator string) (mathOp, bool) {
	if alias, ok := mathAliases[operator]; ok {
		operator = alias
	}
	fn, ok := mathOps[operator]
	return fn, ok
}

// Math applies operator to the number stored at key and operand, stores the
// result and returns it. An absent key is set to operand.
func (c *Client) Math(ctx context.Context, key, operator string, operand float64) (float64, error) {
	c.begin("math", key)
	v, err := c.math(ctx, key, operator, operand)
	return v, c.fail("math", key, err)
}

// Add increments the number at key by n.
func (c *Client) Add(ctx context.Context, key string, n float64) (float64, error) {
	return c.Math(ctx, key, "+", n)
}

// Subtract decrements the number at key by n.
func (c *Client) Subtract(ctx context.Context, key string, n float64) (float64, error) {
	return c.Math(ctx, key, "-", n)
}

func (c *Client) math(ctx context.Context, key, operator string, operand float64) (float64, error) {
	fn, ok := lookupMathOp(operator)
	if !ok {
		return 0, invalid("math", "operator "+operator, ErrUnknownOperator)
	}
	if err := checkValue("math", operand); err != nil {
		return 0, err
	}

	cur, err := c.getRaw(ctx, "math", key, nil)
	if err != nil {
		return 0, err
	}
	result := operand
	if cur != nil {
		x, isNum := c.decode(key, cur, nil).(float64)
		if !isNum {
			return 0, invalid("math", "stored value", ErrNotNumber)
		}
		result = fn(x, operand)
	}
	if err := c.set(ctx, key, result, nil); err != nil {
		return 0, err
	}
	return result, nil
}

// Push appends value to the array at key, creating it when absent, and
// returns the new array.
func (c *Client) Push(ctx context.Context, key string, value any) ([]any, error) {
	c.begin("push", key)
	arr, err := c.push(ctx, key, value)
	return arr, c.fail("push", key, err)
}

func (c *Client) push(ctx context.Context, key string, value any) ([]any, error) {
	elem, err := normalizeValue("push", value)
	if err != nil {
		return nil, err
	}
	cur, err := c.loadArray(ctx, "push", key, true)
	if err != nil {
		return nil, err
	}
	arr := append(cur, elem)
	if err := c.set(ctx, key, arr, nil); err != nil {
		return nil, err
	}
	return arr, nil
}

// Pull removes every element equal to value from the array at key and
// returns the new array. When value is a slice, every element equal to any
// of its members is removed.
func (c *Client) Pull(ctx context.Context, key string, value any) ([]any, error) {
	c.begin("pull", key)
	arr, err := c.pull(ctx, key, value)
	return arr, c.fail("pull", key, err)
}

func (c *Client) pull(ctx context.Context, key string, value any) ([]any, error) {
	norm, err := normalizeValue("pull", value)
	if err != nil {
		return nil, err
	}
	drop := []any{norm}
	if list, ok := norm.([]any); ok {
		drop = list
	}

	cur, err := c.loadArray(ctx, "pull", key, false)
	if err != nil {
		return nil, err
	}
	kept := make([]any, 0, len(cur))
	for _, elem := range cur {
		if !containsValue(drop, elem) {
			kept = append(kept, elem)
		}
	}
	if err := c.set(ctx, key, kept, nil); err != nil {
		return nil, err
	}
	return kept, nil
}

func (c *Client) loadArray(ctx context.Context, op, key string, allowAbsent bool) ([]any, error) {
	raw, err := c.getRaw(ctx, op, key, nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		if allowAbsent {
			return []any{}, nil
		}
		return nil, invalid(op, "stored value", ErrNotArray)
	}
	arr, ok := c.decode(key, raw, nil).([]any)
	if !ok {
		return nil, invalid(op, "stored value", ErrNotArray)
	}
	return arr, nil
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

// All returns every record in listing order. opts.Limit truncates the key
// listing and opts.Raw keeps values undecoded.
func (c *Client) All(ctx context.Context, opts *Options) ([]Record, error) {
	c.begin("all", "")
	records, err := c.all(ctx, "", opts)
	return records, c.fail("all", "", err)
}

// Raw returns every stored value keyed by its key.
func (c *Client) Raw(ctx context.Context, opts *Options) (map[string]any, error) {
	c.begin("raw", "")
	records, err := c.all(ctx, "", opts)
	if err != nil {
		return nil, c.fail("raw", "", err)
	}
	out := make(map[string]any, len(records))
	for _, rec := range records {
		out[rec.ID] = rec.Data
	}
	return out, nil
}

// StartsWith returns the records whose key starts with prefix, sorted by
// opts.SortPath when set.
func (c *Client) StartsWith(ctx context.Context, prefix string, opts *Options) ([]Record, error) {
	c.begin("startsWith", prefix)
	var listOpts *Options
	if opts != nil {
		cp := *opts
		cp.Limit = 0
		listOpts = &cp
	}
	records, err := c.all(ctx, prefix, listOpts)
	if err != nil {
		return nil, c.fail("startsWith", prefix, err)
	}
	sorted := SortRecords(prefix, records, opts)
	if n := opts.limit(); n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted, nil
}

// all lists the keys under prefix and fetches them with bounded
// concurrency. Keys deleted between the listing and the fetch are skipped.
func (c *Client) all(ctx context.Context, prefix string, opts *Options) ([]Record, error) {
	keys, err := c.list(ctx, prefix, opts)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(keys))
	present := make([]bool, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			raw, err := c.getRaw(gctx, "get", key, opts)
			if err != nil || raw == nil {
				return err
			}
			values[i], present[i] = c.decode(key, raw, opts), true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(keys))
	for i, key := range keys {
		if present[i] {
			records = append(records, Record{ID: key, Data: values[i]})
		}
	}
	return records, nil
}
