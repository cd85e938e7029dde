package geo

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedLocator is a Locator with a bounded LRU cache in front of it.
// Empty results are not cached so transient failures are retried.
type CachedLocator struct {
	next  Locator
	cache *lru.Cache[string, string]
}

func NewCachedLocator(next Locator, capacity int) (*CachedLocator, error) {
	c, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedLocator{next: next, cache: c}, nil
}

func (c *CachedLocator) Locate(ctx context.Context, ip string) string {
	if loc, ok := c.cache.Get(ip); ok {
		return loc
	}
	loc := c.next.Locate(ctx, ip)
	if loc != "" {
		c.cache.Add(ip, loc)
	}
	return loc
}

// Len is the number of cached addresses.
func (c *CachedLocator) Len() int {
	return c.cache.Len()
}
