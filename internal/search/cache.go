package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CacheObserver is notified of every cache lookup.
type CacheObserver interface {
	ObserveSearchCache(hit bool)
}

// CachedSearcher memoizes successful search results for a TTL.
// Failures are never cached.
type CachedSearcher struct {
	next     Searcher
	cache    *ristretto.Cache
	ttl      time.Duration
	observer CacheObserver
}

func NewCachedSearcher(next Searcher, ttl time.Duration, maxEntries int, observer CacheObserver) (*CachedSearcher, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(maxEntries) * 10,
		MaxCost:            int64(maxEntries),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}
	return &CachedSearcher{
		next:     next,
		cache:    cache,
		ttl:      ttl,
		observer: observer,
	}, nil
}

func (c *CachedSearcher) Search(ctx context.Context, query string) (string, error) {
	key := cacheKey(query)
	if v, ok := c.cache.Get(key); ok {
		if text, ok := v.(string); ok {
			c.observe(true)
			return text, nil
		}
	}
	c.observe(false)

	text, err := c.next.Search(ctx, query)
	if err != nil {
		return "", err
	}
	c.cache.SetWithTTL(key, text, 1, c.ttl)
	// Make the entry visible to the next lookup.
	c.cache.Wait()
	return text, nil
}

// Close releases the cache's background goroutines.
func (c *CachedSearcher) Close() {
	c.cache.Close()
}

func (c *CachedSearcher) observe(hit bool) {
	if c.observer != nil {
		c.observer.ObserveSearchCache(hit)
	}
}

func cacheKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
