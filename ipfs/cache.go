package ipfs

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/dzeckelev/gift-ledger/metrics"
)

const defaultCacheSize = 128

type cacheEntry struct {
	doc Document
	err error
}

// Cache memoises resolutions for the lifetime of a single view. Failures
// are memoised too, and concurrent lookups of one address share a single
// resolution, so a view asks the gateways once per address.
type Cache struct {
	source  Source
	entries *lru.Cache
	flights singleflight.Group
	metrics *metrics.Metrics
}

// NewCache wraps a source with a bounded memo.
func NewCache(source Source, size int, m *metrics.Metrics) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}

	// lru.New only fails on a non-positive size.
	entries, _ := lru.New(size)

	return &Cache{
		source:  source,
		entries: entries,
		metrics: m,
	}
}

// View returns a fresh per-view cache over the resolver.
func (r *Resolver) View() *Cache {
	return NewCache(r, r.cacheSize, r.metrics)
}

// Resolve returns a memoised document or resolves it through the source.
func (c *Cache) Resolve(ctx context.Context,
	address string) (Document, error) {
	key := StripScheme(address)

	if v, ok := c.entries.Get(key); ok {
		c.metrics.CacheLookup(true)
		e := v.(cacheEntry)
		return e.doc, e.err
	}
	c.metrics.CacheLookup(false)

	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		// A flight for key may have finished since the lookup above.
		if v, ok := c.entries.Get(key); ok {
			e := v.(cacheEntry)
			return e.doc, e.err
		}

		doc, err := c.source.Resolve(ctx, key)
		// A cancelled view must not poison the memo.
		if ctx.Err() == nil {
			c.entries.Add(key, cacheEntry{doc: doc, err: err})
		}
		return doc, err
	})

	doc, _ := v.(Document)
	return doc, err
}

// Len returns the number of memoised addresses.
func (c *Cache) Len() int {
	return c.entries.Len()
}
