package kvdb

import "context"

// Fetch is an alias of Get.
func (c *Client) Fetch(ctx context.Context, key string, opts *Options) (any, error) {
	return c.Get(ctx, key, opts)
}

// Write is an alias of Set.
func (c *Client) Write(ctx context.Context, key string, value any, opts *Options) error {
	return c.Set(ctx, key, value, opts)
}

// Has is an alias of Exists.
func (c *Client) Has(ctx context.Context, key string) (bool, error) {
	return c.Exists(ctx, key)
}

// Typeof is an alias of TypeOf.
func (c *Client) Typeof(ctx context.Context, key string) (ValueType, error) {
	return c.TypeOf(ctx, key)
}

// ListAll is an alias of ListKeys.
func (c *Client) ListAll(ctx context.Context, prefix string, limit int) ([]string, error) {
	return c.ListKeys(ctx, prefix, limit)
}

// DeleteAll is an alias of Clear.
func (c *Client) DeleteAll(ctx context.Context) (int, error) {
	return c.Clear(ctx)
}
