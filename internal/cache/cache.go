package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Config holds two-tier cache configuration.
type Config struct {
	Dir            string // empty disables the disk tier entirely
	DefaultTTL     time.Duration
	DiskMultiplier int // disk retention = ttl * multiplier (default 6)
	MaxMemoryItems int
}

// Cache is the two-tier cache. Lookups check memory, then disk; stale disk
// entries within retention are served immediately while one background
// refresh revalidates them.
type Cache struct {
	mem  *memoryTier
	disk *diskTier

	defaultTTL     time.Duration
	diskMultiplier int
	bulkMode       atomic.Bool

	flight singleflight.Group

	mu       sync.Mutex
	inflight map[string]bool

	logger zerolog.Logger
}

// New creates a cache. A disk tier is only created when cfg.Dir is set.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 30 * time.Minute
	}
	if cfg.DiskMultiplier <= 0 {
		cfg.DiskMultiplier = 6
	}

	c := &Cache{
		mem:            newMemoryTier(cfg.MaxMemoryItems),
		defaultTTL:     cfg.DefaultTTL,
		diskMultiplier: cfg.DiskMultiplier,
		inflight:       make(map[string]bool),
		logger:         logger.With().Str("component", "cache").Logger(),
	}

	if cfg.Dir != "" {
		disk, err := newDiskTier(cfg.Dir, c.logger)
		if err != nil {
			return nil, err
		}
		c.disk = disk
	}
	return c, nil
}

// SetBulkMode toggles the disk tier off. Once a precomputed dataset is
// loaded wholesale, caching individual scraped pages on disk adds only
// cleanup cost.
func (c *Cache) SetBulkMode(on bool) {
	c.bulkMode.Store(on)
}

// diskEnabled reports whether the disk tier participates in lookups.
func (c *Cache) diskEnabled() bool {
	return c.disk != nil && !c.bulkMode.Load()
}

// Get retrieves a fresh value for key into the given pointer. A disk hit
// repopulates the memory tier.
func (c *Cache) Get(key string, into any) Status {
	now := time.Now()

	if entry, ok := c.mem.get(key, now); ok {
		if err := json.Unmarshal(entry.Value, into); err == nil {
			lookups.WithLabelValues("memory").Inc()
			return StatusMemory
		}
	}

	if c.diskEnabled() {
		if entry, ok := c.disk.read(key, now); ok && entry.Fresh(now) {
			if err := json.Unmarshal(entry.Value, into); err == nil {
				c.mem.set(entry)
				lookups.WithLabelValues("disk").Inc()
				return StatusDisk
			}
		}
	}

	lookups.WithLabelValues("miss").Inc()
	return StatusMiss
}

// Set stores a value in both tiers.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	entry, err := c.buildEntry(key, value, ttl)
	if err != nil {
		return err
	}
	c.mem.set(entry)
	if c.diskEnabled() {
		c.disk.write(entry)
	}
	return nil
}

// Delete removes a key from both tiers.
func (c *Cache) Delete(key string) {
	c.mem.delete(key)
	if c.disk != nil {
		c.disk.delete(key)
	}
}

// Producer computes a value for a cold or stale key.
type Producer func(ctx context.Context) (any, error)

// Wrap returns the cached value for key, producing it when needed.
//
// Memory hits return immediately with no IO. Fresh disk hits repopulate
// memory. Stale disk entries within retention are returned as-is and one
// background refresh is started unless one is already in flight for the key.
// Only a fully cold key invokes the producer synchronously, and that is the
// only path where a producer error reaches the caller.
func (c *Cache) Wrap(ctx context.Context, key string, ttl time.Duration, into any, producer Producer) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	if entry, ok := c.mem.get(key, now); ok {
		lookups.WithLabelValues("memory").Inc()
		return json.Unmarshal(entry.Value, into)
	}

	if c.diskEnabled() {
		if entry, ok := c.disk.read(key, now); ok {
			if entry.Fresh(now) {
				c.mem.set(entry)
				lookups.WithLabelValues("disk").Inc()
				return json.Unmarshal(entry.Value, into)
			}
			// Stale but retained: serve it and revalidate in the background.
			staleServed.Inc()
			c.refreshAsync(key, ttl, producer)
			return json.Unmarshal(entry.Value, into)
		}
	}

	// Cold path. Singleflight collapses concurrent cold callers into one
	// producer invocation.
	raw, err, _ := c.flight.Do(key, func() (any, error) {
		value, err := producer(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if err := c.Set(key, value, ttl); err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), into)
}

// refreshAsync starts one background revalidation for key. Failures are
// logged and discarded; the stale value stays in place for the next caller
// to retry.
func (c *Cache) refreshAsync(key string, ttl time.Duration, producer Producer) {
	c.mu.Lock()
	if c.inflight[key] {
		c.mu.Unlock()
		return
	}
	c.inflight[key] = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
		}()

		value, err := producer(context.Background())
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Background refresh failed, keeping stale value")
			refreshes.WithLabelValues("error").Inc()
			return
		}
		if err := c.Set(key, value, ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Background refresh store failed")
			refreshes.WithLabelValues("error").Inc()
			return
		}
		refreshes.WithLabelValues("ok").Inc()
	}()
}

// Close stops the memory tier's cleanup goroutine.
func (c *Cache) Close() {
	c.mem.close()
}

func (c *Cache) buildEntry(key string, value any, ttl time.Duration) (Entry, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	now := time.Now()
	return Entry{
		Key:             key,
		Value:           raw,
		MemoryExpiresAt: now.Add(ttl),
		DiskExpiresAt:   now.Add(ttl * time.Duration(c.diskMultiplier)),
		CreatedAt:       now,
	}, nil
}
