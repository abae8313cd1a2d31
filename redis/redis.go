// Package redis implements the xfer.Cache shared-store contract on a Redis
// server: string keys with TTL for idempotency records, hash keys for
// transaction log entries, SCAN for the recovery worker, and advisory
// locks for pair-granularity mutual exclusion.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/encoding"
)

type client struct {
	conn    *Connection
	isOwner bool
}

// NewClient returns a Cache wrapper over the singleton Redis connection.
func NewClient() xfer.Cache {
	return &client{
		conn: connection,
	}
}

// NewConnectionClient opens a dedicated Redis connection and returns a
// client wrapper owning it; call Close when done.
func NewConnectionClient(options Options) (xfer.Cache, error) {
	c, err := openConnection(options)
	if err != nil {
		return nil, err
	}
	return &client{
		conn:    c,
		isOwner: true,
	}, nil
}

// Close this client's connection if it owns one.
func (c *client) Close() error {
	if !c.isOwner || c.conn == nil {
		return nil
	}
	err := closeConnection(c.conn)
	c.conn = nil
	return err
}

// keyNotFound will detect whether error signifies key not found by Redis.
func (c client) keyNotFound(err error) bool {
	return err == redis.Nil
}

// Ping tests connectivity for redis (PONG should be returned).
func (c client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return c.conn.Client.Ping(ctx).Err()
}

// Set executes the redis Set command
func (c client) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	// No caching if expiration < 0.
	if expiration < 0 {
		return nil
	}
	return c.conn.Client.Set(ctx, key, value, expiration).Err()
}

// Get executes the redis Get command
func (c client) Get(ctx context.Context, key string) (bool, string, error) {
	if c.conn == nil {
		return false, "", fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	s, err := c.conn.Client.Get(ctx, key).Result()
	// Convert key not found into returning false and nil err.
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, s, err
}

// SetStruct executes the redis Set command with a JSON-serialized value.
func (c client) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	// No caching if expiration < 0.
	if expiration < 0 {
		return nil
	}
	ba, err := encoding.DefaultMarshaler.Marshal(value)
	if err != nil {
		return err
	}
	return c.conn.Client.Set(ctx, key, ba, expiration).Err()
}

// GetStruct executes the redis Get command and JSON-decodes into target.
func (c client) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	if target == nil {
		return false, fmt.Errorf("target can't be nil")
	}
	ba, err := c.conn.Client.Get(ctx, key).Bytes()
	if err == nil {
		err = encoding.DefaultMarshaler.Unmarshal(ba, target)
	}

	// Convert key not found into returning false and nil err.
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, err
}

// Delete executes the redis Del command
func (c client) Delete(ctx context.Context, keys []string) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	rs := c.conn.Client.Del(ctx, keys...)

	err := rs.Err()
	// Convert key not found into returning false and nil err.
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, err
}

// SetFields executes the redis HSet command, merging fields into the hash at key.
func (c client) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	m := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return c.conn.Client.HSet(ctx, key, m).Err()
}

// GetFields executes the redis HGetAll command.
func (c client) GetFields(ctx context.Context, key string) (bool, map[string]string, error) {
	if c.conn == nil {
		return false, nil, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	m, err := c.conn.Client.HGetAll(ctx, key).Result()
	if err != nil {
		if c.keyNotFound(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	// HGetAll returns an empty map for a missing key.
	if len(m) == 0 {
		return false, nil, nil
	}
	return true, m, nil
}

// ScanKeys iterates keys matching pattern via the redis Scan command.
func (c client) ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	var cursor uint64
	for {
		keys, next, err := c.conn.Client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := fn(k); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
