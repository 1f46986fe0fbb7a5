package service

import (
	"sync"
	"time"

	"perp_bot/internal/modules/metrics"
)

type cacheEntry struct {
	payload interface{}
	expiry  time.Time
}

// ttlCache — карта ключ → (значение, срок). Просроченные записи
// вычищаются лениво при обращении. Доступ из всех per-symbol горутин,
// поэтому под мьютексом.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newTTLCache(now func() time.Time) *ttlCache {
	return &ttlCache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

func (c *ttlCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiry) {
		delete(c.entries, key)
		return nil, false
	}
	return e.payload, true
}

func (c *ttlCache) set(key string, payload interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, expiry: c.now().Add(ttl)}
}

// cacheGet — get + метрики по классу ключа.
func (c *Client) cacheGet(class, key string) (interface{}, bool) {
	v, ok := c.cache.get(key)
	if ok {
		metrics.CacheHits.WithLabelValues(class).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(class).Inc()
	}
	return v, ok
}
