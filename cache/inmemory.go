package cache

import (
	"context"
	"sync"
	"time"
)

var _ DistributedCache = (*InMemoryCache)(nil)

type inMemoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// InMemoryCache is a process-local DistributedCache. Get drops the expired entries it finds;
// entries that are never read again go on the next Cleanup, which WithCleanupInterval runs in
// the background until Close.
type InMemoryCache struct {
	entries map[string]inMemoryEntry
	mu      sync.RWMutex
	nowFunc func() time.Time

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// InMemoryOption configures an InMemoryCache.
type InMemoryOption func(*InMemoryCache)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) InMemoryOption {
	return func(c *InMemoryCache) {
		c.nowFunc = now
	}
}

// WithCleanupInterval runs Cleanup every d until Close.
func WithCleanupInterval(d time.Duration) InMemoryOption {
	return func(c *InMemoryCache) {
		c.cleanupInterval = d
	}
}

func NewInMemoryCache(options ...InMemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]inMemoryEntry),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.cleanupInterval > 0 {
		c.stop = make(chan struct{})
		go c.cleanupLoop()
	}
	return c
}

func (c *InMemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if c.expired(e) {
		c.mu.Lock()
		// a concurrent Set may have replaced the entry
		if cur, ok := c.entries[key]; ok && c.expired(cur) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *InMemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := inMemoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.nowFunc().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Cleanup removes expired entries
func (c *InMemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup, if any.
func (c *InMemoryCache) Close() error {
	if c.stop != nil {
		c.stopOnce.Do(func() { close(c.stop) })
	}
	return nil
}

func (c *InMemoryCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Len returns the number of stored entries, expired ones included until they are dropped.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryCache) expired(e inMemoryEntry) bool {
	return !e.expiresAt.IsZero() && !c.nowFunc().Before(e.expiresAt)
}
