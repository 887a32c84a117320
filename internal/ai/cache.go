package ai

import (
	"strings"
	"sync"
)

// Fingerprint is the cache key of a request: its message contents, in order.
func Fingerprint(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
	}
	return b.String()
}

// responseCache holds the last good response per fingerprint for the life
// of the process. It never evicts on its own.
type responseCache struct {
	mu sync.RWMutex
	m  map[string]*ChatResponse
}

func newResponseCache() *responseCache {
	return &responseCache{m: make(map[string]*ChatResponse)}
}

func (c *responseCache) Get(key string) (*ChatResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.m[key]
	return r, ok
}

func (c *responseCache) Put(key string, r *ChatResponse) {
	c.mu.Lock()
	c.m[key] = r
	c.mu.Unlock()
}

func (c *responseCache) Clear() {
	c.mu.Lock()
	c.m = make(map[string]*ChatResponse)
	c.mu.Unlock()
}

func (c *responseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
