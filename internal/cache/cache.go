// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package cache provides the time-bounded query result cache that sits in
// front of the remote analytics read endpoints.
//
// Staleness is a recompute-on-access condition, not a background sweep:
// an entry past its TTL is treated as a miss (and removed) the next time it
// is read, but no goroutine ever scans the cache. Entries are otherwise only
// removed by an explicit Delete or Clear.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/openkerb/kerbside/internal/metrics"
)

// Entry represents a cached item with its population time.
type Entry struct {
	Data      []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Cache is a thread-safe in-memory TTL cache for analytics query results.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
	stats   Stats
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// Option customizes cache construction.
type Option func(*Cache)

// WithNow overrides the cache's time source. Tests use this to probe
// freshness boundaries without sleeping.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a query result cache with the given TTL for all entries.
//
// An entry is fresh only while now - storedAt < ttl; reads at or past the
// boundary are misses. Safe for concurrent use.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves the cached data for key, or reports a miss if the key is
// absent or its entry has gone stale. A stale entry is removed on access.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	if !c.now().Before(entry.ExpiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// refreshed the entry since the read above.
		if cur, ok := c.entries[key]; ok && cur.StoredAt.Equal(entry.StoredAt) {
			delete(c.entries, key)
			c.stats.Evictions++
			c.stats.TotalKeys = int64(len(c.entries))
		}
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return entry.Data, true
}

// Set stores data under key with a fresh timestamp, overwriting any prior
// entry for the same key.
func (c *Cache) Set(key string, data []byte) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = Entry{
		Data:      data,
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.stats.TotalKeys = int64(len(c.entries))
	c.mu.Unlock()
}

// Delete removes a specific entry. No-op for absent keys.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.TotalKeys = int64(len(c.entries))
	}
	c.mu.Unlock()
}

// Clear removes all entries unconditionally. O(1): the map is replaced and
// the old one left to the garbage collector.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]Entry)
	c.stats.TotalKeys = 0
	c.mu.Unlock()
}

// Len returns the current number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// HitRate returns the cache hit rate as a percentage.
func (c *Cache) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	metrics.RecordCacheHit()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	metrics.RecordCacheMiss()
}

// GenerateKey derives a deterministic cache key from an endpoint identity
// and its query parameters. Parameters are serialized to canonical JSON
// (map keys marshal in sorted order), so two logically identical parameter
// sets produce the same key regardless of construction order.
func GenerateKey(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}
	data, err := json.Marshal(params)
	if err != nil {
		// Unreachable for string maps; fall back to a readable key.
		return fmt.Sprintf("%s:%v", endpoint, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", endpoint, hash[:16])
}
