package kvdb

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"
)

// Ping writes, reads back and deletes the PingKey canary, timing each leg
// with the client clock.
func (c *Client) Ping(ctx context.Context) (*Latency, error) {
	c.begin("ping", PingKey)
	lat, err := c.ping(ctx)
	return lat, c.fail("ping", PingKey, err)
}

func (c *Client) ping(ctx context.Context) (*Latency, error) {
	start := c.clock.Now()
	payload := base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(start.UnixMilli(), 10)))

	lat := &Latency{}
	legs := []struct {
		dst *time.Duration
		run func() error
	}{
		{&lat.Write, func() error { return c.set(ctx, PingKey, payload, nil) }},
		{&lat.Read, func() error { _, err := c.get(ctx, PingKey, nil); return err }},
		{&lat.Delete, func() error {
			return c.retry.do(ctx, "delete", nil, func(ctx context.Context) error {
				return c.backend.Delete(ctx, PingKey)
			})
		}},
	}
	for _, leg := range legs {
		t0 := c.clock.Now()
		if err := leg.run(); err != nil {
			return nil, err
		}
		*leg.dst = c.clock.Since(t0)
	}
	lat.Average = (lat.Write + lat.Read + lat.Delete) / 3
	return lat, nil
}
