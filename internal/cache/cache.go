// Package cache keeps short-lived preview snapshots for "open in new window".
package cache

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Snapshot is one composed preview document.
type Snapshot struct {
	Document  string
	Kind      string
	CreatedAt time.Time
}

// Entry represents a cached snapshot
type Entry struct {
	Snapshot  Snapshot
	ExpiresAt time.Time
}

// PreviewCache is an in-memory snapshot cache with TTL support
type PreviewCache struct {
	clock      clock.Clock
	ttl        time.Duration
	maxEntries int

	mu      sync.RWMutex
	entries map[string]*Entry

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
}

// Options configures a PreviewCache.
type Options struct {
	TTL        time.Duration // default 10 minutes
	MaxEntries int           // default 1000; the oldest entry is evicted first
	Clock      clock.Clock
}

// New creates a cache and starts its cleanup goroutine.
func New(opts Options) *PreviewCache {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	c := &PreviewCache{
		clock:           opts.Clock,
		ttl:             opts.TTL,
		maxEntries:      opts.MaxEntries,
		entries:         make(map[string]*Entry),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a snapshot. Expired entries are removed on access.
func (c *PreviewCache) Get(id string) (Snapshot, bool) {
	c.mu.RLock()
	entry, exists := c.entries[id]
	c.mu.RUnlock()

	if !exists {
		return Snapshot{}, false
	}

	if c.clock.Now().After(entry.ExpiresAt) {
		c.Invalidate(id)
		return Snapshot{}, false
	}

	return entry.Snapshot, true
}

// Put stores a snapshot under id for the cache TTL.
func (c *PreviewCache) Put(id string, snap Snapshot) {
	now := c.clock.Now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[id] = &Entry{Snapshot: snap, ExpiresAt: now.Add(c.ttl)}
}

func (c *PreviewCache) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range c.entries {
		if oldestID == "" || e.ExpiresAt.Before(oldest) {
			oldestID, oldest = id, e.ExpiresAt
		}
	}
	delete(c.entries, oldestID)
}

// Invalidate removes an entry from the cache
func (c *PreviewCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// cleanupLoop periodically removes expired entries
func (c *PreviewCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries
func (c *PreviewCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for id, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, id)
		}
	}
}

// Stop stops the background cleanup goroutine
// Safe to call multiple times
func (c *PreviewCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries in the cache (for testing)
func (c *PreviewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
