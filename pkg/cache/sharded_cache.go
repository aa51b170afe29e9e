// Package cache provides a sharded last-price cache. Price ticks arrive from
// the feed's dispatch goroutine while the scheduler loops read concurrently;
// sharding keeps the two from contending on one lock.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// ShardedPriceCache stores the most recent price per symbol.
type ShardedPriceCache struct {
	shards [numShards]*priceShard
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]priceEntry
}

type priceEntry struct {
	price     float64
	updatedAt time.Time
}

// NewShardedPriceCache creates an empty cache.
func NewShardedPriceCache() *ShardedPriceCache {
	c := &ShardedPriceCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &priceShard{
			items: make(map[string]priceEntry),
		}
	}
	return c
}

func (c *ShardedPriceCache) getShard(key string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a price for a symbol.
func (c *ShardedPriceCache) Set(symbol string, price float64) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	shard.items[symbol] = priceEntry{
		price:     price,
		updatedAt: time.Now(),
	}
	shard.mu.Unlock()
}

// Get retrieves the last price for a symbol.
func (c *ShardedPriceCache) Get(symbol string) (float64, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	return entry.price, ok
}

// GetWithAge retrieves the last price and how long ago it was set.
func (c *ShardedPriceCache) GetWithAge(symbol string) (float64, time.Duration, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return entry.price, time.Since(entry.updatedAt), true
}

// Delete removes a symbol from the cache.
func (c *ShardedPriceCache) Delete(symbol string) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	delete(shard.items, symbol)
	shard.mu.Unlock()
}

// Len returns total cached symbols across all shards.
func (c *ShardedPriceCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// GetAll returns all cached prices.
func (c *ShardedPriceCache) GetAll() map[string]float64 {
	result := make(map[string]float64)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for sym, entry := range shard.items {
			result[sym] = entry.price
		}
		shard.mu.RUnlock()
	}
	return result
}
