package store

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore memoises ID lookups of another TradeStore. Range queries and
// vector search pass through.
type CachedStore struct {
	TradeStore
	ids *expirable.LRU[string, int64]
}

func NewCachedStore(inner TradeStore, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 1000
	}
	return &CachedStore{
		TradeStore: inner,
		ids:        expirable.NewLRU[string, int64](size, nil, ttl),
	}
}

func (c *CachedStore) cached(key string, lookup func() (int64, error)) (int64, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if id, ok := c.ids.Get(key); ok {
		return id, nil
	}
	id, err := lookup()
	if err != nil {
		return 0, err
	}
	c.ids.Add(key, id)
	return id, nil
}

func (c *CachedStore) LookupCountryID(ctx context.Context, name string) (int64, error) {
	return c.cached("country_"+name, func() (int64, error) { return c.TradeStore.LookupCountryID(ctx, name) })
}

func (c *CachedStore) LookupProductID(ctx context.Context, name string) (int64, error) {
	return c.cached("product_"+name, func() (int64, error) { return c.TradeStore.LookupProductID(ctx, name) })
}

func (c *CachedStore) LookupIndicatorID(ctx context.Context, metric string) (int64, error) {
	return c.cached("indicator_"+metric, func() (int64, error) { return c.TradeStore.LookupIndicatorID(ctx, metric) })
}
