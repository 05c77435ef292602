// Package cache is a read-through convenience cache holding full-table
// snapshots. It is advisory: any failure degrades to a miss so callers
// fall back to the store, and it is never the source of truth for writes.
package cache

import (
	"errors"
	"time"

	"github.com/fortressbank/bankd/pkg/logger"
	"github.com/fortressbank/bankd/pkg/redis"
)

const DefaultTTL = 5 * time.Minute

const keyPrefix = "table:"

type TableCache struct {
	adapter redis.RedisAdapter
	ttl     time.Duration
}

// New builds a cache over the redis adapter. A nil adapter is allowed
// and behaves as an always-miss cache.
func New(adapter redis.RedisAdapter, ttl time.Duration) *TableCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TableCache{adapter: adapter, ttl: ttl}
}

// Get returns the cached snapshot for a table, or absent.
func (c *TableCache) Get(table string) ([]byte, bool) {
	if c.adapter == nil {
		return nil, false
	}
	data, err := c.adapter.Get(keyPrefix + table)
	if err != nil {
		if !errors.Is(err, redis.NilError) {
			logger.Warn("cache get failed, degrading to store read", "table", table, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (c *TableCache) Set(table string, snapshot []byte) {
	c.SetTTL(table, snapshot, c.ttl)
}

func (c *TableCache) SetTTL(table string, snapshot []byte, ttl time.Duration) {
	if c.adapter == nil {
		return
	}
	if err := c.adapter.Set(keyPrefix+table, snapshot, ttl); err != nil {
		logger.Warn("cache set failed", "table", table, "error", err)
	}
}

// Invalidate drops a table snapshot. Called by every component that
// mutates the underlying table, most importantly the replication engine.
func (c *TableCache) Invalidate(table string) {
	if c.adapter == nil {
		return
	}
	if err := c.adapter.Del(keyPrefix + table); err != nil {
		logger.Warn("cache invalidate failed", "table", table, "error", err)
	}
}

// Clear flushes everything. Run once at process start.
func (c *TableCache) Clear() {
	if c.adapter == nil {
		return
	}
	if err := c.adapter.FlushDB(); err != nil {
		logger.Warn("cache clear failed", "error", err)
	}
}
