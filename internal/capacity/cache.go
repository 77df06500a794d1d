package capacity

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached is a Redis read-through cache in front of another resolver.  Redis
// failures are ignored so that a cache outage degrades to direct lookups.
// Misses from the wrapped resolver are not cached.
type Cached struct {
	next   Resolver
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCached wraps next.  With a nil client every call goes straight to next.
func NewCached(next Resolver, rdb *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, prefix: "capacity"}
}

func (c *Cached) key(venueID string) string { return c.prefix + ":" + venueID }

func (c *Cached) Capacity(ctx context.Context, venueID string) (int, error) {
	if c.rdb == nil {
		return c.next.Capacity(ctx, venueID)
	}
	if v, err := c.rdb.Get(ctx, c.key(venueID)).Result(); err == nil {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
			return n, nil
		}
	}
	// redis.Nil or an unreachable server: ask the source.
	n, err := c.next.Capacity(ctx, venueID)
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Set(ctx, c.key(venueID), n, c.ttl).Err()
	return n, nil
}

// Invalidate drops the cached capacity of venueID.
func (c *Cached) Invalidate(ctx context.Context, venueID string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key(venueID)).Err()
}
