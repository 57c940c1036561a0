package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultCacheTTL     = 24 * time.Hour
	defaultCacheCleanup = 10 * time.Minute
)

// cachedProvider decorates a Provider with an in-memory response cache so
// the identifier-merge pass can reuse search results already fetched for
// the canonical pass without a second HTTP exchange. Errors are never
// cached.
type cachedProvider struct {
	Provider
	cache *cache.Cache
}

// WithCache wraps p with a response cache. A zero ttl uses the default.
func WithCache(p Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &cachedProvider{
		Provider: p,
		cache:    cache.New(ttl, defaultCacheCleanup),
	}
}

func (c *cachedProvider) Search(ctx context.Context, title string, mediaType MediaType, year string) ([]MetadataResult, error) {
	key := searchKey(c.Service(), title, mediaType, year)
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]MetadataResult), nil
	}

	results, err := c.Provider.Search(ctx, title, mediaType, year)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, results, cache.DefaultExpiration)
	return results, nil
}

func (c *cachedProvider) GetDetails(ctx context.Context, id string, mediaType MediaType) (MetadataResult, error) {
	key := detailsKey(c.Service(), id, mediaType)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(MetadataResult), nil
	}

	result, err := c.Provider.GetDetails(ctx, id, mediaType)
	if err != nil {
		return MetadataResult{}, err
	}
	c.cache.Set(key, result, cache.DefaultExpiration)
	return result, nil
}

func searchKey(svc ServiceType, title string, mediaType MediaType, year string) string {
	return fmt.Sprintf("search:%s:%s:%s:%s", svc, mediaType, title, year)
}

func detailsKey(svc ServiceType, id string, mediaType MediaType) string {
	return fmt.Sprintf("details:%s:%s:%s", svc, mediaType, id)
}
