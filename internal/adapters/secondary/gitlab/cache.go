package gitlab

import (
	"sync"
	"time"
)

// CacheEntry is one cached response body, valid while the server keeps
// returning 304 for its ETag.
type CacheEntry struct {
	ETag         string
	ContentType  string
	Body         []byte
	lastAccessed time.Time
}

// Cache maps absolute request URLs to conditional-request validators
// and their cached bodies. Entries are evicted by a timer-driven sweep
// rather than per request, so the sweep cost is independent of request
// volume. There is no capacity bound beyond the sweep: entries only
// exist for URLs the process has actually queried.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*CacheEntry),
		now:     time.Now,
	}
}

// Get returns the entry for url, or nil. A hit refreshes the entry's
// last-accessed time: reads count as access for eviction purposes.
func (c *Cache) Get(url string) *CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return nil
	}
	entry.lastAccessed = c.now()

	return entry
}

// Put stores the validator and body for url, replacing any existing
// entry.
func (c *Cache) Put(url, etag, contentType string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[url] = &CacheEntry{
		ETag:         etag,
		ContentType:  contentType,
		Body:         body,
		lastAccessed: c.now(),
	}
}

// Sweep evicts every entry that has not been accessed for longer than
// maxAge.
func (c *Cache) Sweep(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxAge)
	for url, entry := range c.entries {
		if entry.lastAccessed.Before(cutoff) {
			delete(c.entries, url)
		}
	}
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// SweepEvery runs Sweep(maxAge) on a fixed timer until the returned
// stop function is called.
func (c *Cache) SweepEvery(maxAge time.Duration) (stop func()) {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(maxAge)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep(maxAge)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once

	return func() { once.Do(func() { close(done) }) }
}
