package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// resultCache is a TTL cache of successful call results. Entries expire
// lazily on read and proactively via the orchestrator's sweep loop.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	data      any
	timestamp time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

// cacheKey builds a stable hash of (service, method, params). Map keys are
// sorted by encoding/json, so equal params hash equally regardless of
// insertion order.
func cacheKey(service, method string, params map[string]any) string {
	payload, _ := json.Marshal(params)
	h := sha256.Sum256([]byte(service + "\x00" + method + "\x00" + string(payload)))
	return hex.EncodeToString(h[:])
}

func (c *resultCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(e.timestamp) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

func (c *resultCache) put(key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{data: data, timestamp: time.Now()}
}

// sweep removes expired entries and reports how many were evicted.
func (c *resultCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for k, e := range c.entries {
		if time.Since(e.timestamp) > c.ttl {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
