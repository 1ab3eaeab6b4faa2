package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redigo "github.com/gomodule/redigo/redis"

	"photoTracker/iplookup"
)

const (
	keyPrefix = "iplookup:"
	scanCount = 100
)

// LookupCache keeps lookup results in Redis with a per-key expiry.
type LookupCache struct {
	pool *redigo.Pool
}

func NewLookupCache(pool *redigo.Pool) *LookupCache {
	return &LookupCache{pool: pool}
}

func (c *LookupCache) Get(ctx context.Context, ip string) (*iplookup.Result, bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get: %w", err)
	}
	defer conn.Close()

	raw, err := redigo.Bytes(conn.Do("GET", keyPrefix+ip))
	if errors.Is(err, redigo.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get %q: %w", ip, err)
	}

	var r iplookup.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("redis cache decode %q: %w", ip, err)
	}
	return &r, true, nil
}

func (c *LookupCache) Put(ctx context.Context, ip string, r *iplookup.Result, ttl time.Duration) error {
	serialised, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis cache encode %q: %w", ip, err)
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis cache put: %w", err)
	}
	defer conn.Close()

	secs := int64(ttl / time.Second)
	if secs <= 0 {
		_, err = conn.Do("SET", keyPrefix+ip, serialised)
	} else {
		_, err = conn.Do("SET", keyPrefix+ip, serialised, "EX", secs)
	}
	if err != nil {
		return fmt.Errorf("redis cache put %q: %w", ip, err)
	}
	return nil
}

// Clear removes every cached lookup, walking the keyspace with SCAN.
func (c *LookupCache) Clear(ctx context.Context) (int, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("redis cache clear: %w", err)
	}
	defer conn.Close()

	cursor := "0"
	deleted := 0
	for {
		values, err := redigo.Values(conn.Do("SCAN", cursor, "MATCH", keyPrefix+"*", "COUNT", scanCount))
		if err != nil {
			return deleted, fmt.Errorf("redis cache clear: scan: %w", err)
		}
		if len(values) != 2 {
			return deleted, fmt.Errorf("redis cache clear: unexpected SCAN reply of %d elements", len(values))
		}
		if cursor, err = redigo.String(values[0], nil); err != nil {
			return deleted, fmt.Errorf("redis cache clear: scan cursor: %w", err)
		}
		keys, err := redigo.Strings(values[1], nil)
		if err != nil {
			return deleted, fmt.Errorf("redis cache clear: scan keys: %w", err)
		}

		if len(keys) > 0 {
			n, err := redigo.Int(conn.Do("DEL", redigo.Args{}.AddFlat(keys)...))
			if err != nil {
				return deleted, fmt.Errorf("redis cache clear: %w", err)
			}
			deleted += n
		}
		if cursor == "0" {
			return deleted, nil
		}
	}
}
