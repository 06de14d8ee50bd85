package idassign

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/types"
)

// UsedIDsLoader reads the bitmap of document IDs currently in use for an
// (account, collection) pair, typically backed by pkg/storage.
type UsedIDsLoader func(account types.AccountID, collection types.Collection) (*roaring.Bitmap, error)

type cacheKey struct {
	account    types.AccountID
	collection types.Collection
}

type cacheEntry struct {
	mu       sync.Mutex
	assigner *IdAssigner
}

// Cache memoizes one IdAssigner per (account, collection), loading it at
// most once even when multiple goroutines race to assign an ID for a key
// that has never been touched.
type Cache struct {
	load UsedIDsLoader

	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// NewCache builds a Cache that loads used-ID bitmaps via load.
func NewCache(load UsedIDsLoader) *Cache {
	return &Cache{load: load, entries: make(map[cacheKey]*cacheEntry)}
}

func (c *Cache) entryFor(account types.AccountID, collection types.Collection) *cacheEntry {
	key := cacheKey{account, collection}
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()
	return e
}

// Assign returns the next document ID for (account, collection),
// constructing and caching the IdAssigner on first use. A failure to load
// the used-IDs bitmap is reported as an Internal error; it never panics.
func (c *Cache) Assign(account types.AccountID, collection types.Collection) (types.DocumentID, error) {
	e := c.entryFor(account, collection)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.assigner == nil {
		used, err := c.load(account, collection)
		if err != nil {
			return 0, errs.NewInternal("idassign.Cache.Assign", err)
		}
		e.assigner = New(used)
	}
	return types.DocumentID(e.assigner.AssignDocumentID()), nil
}

// Evict drops the cached assigner for (account, collection), forcing the
// next Assign to reload from storage. Used after a rollback that may have
// invalidated the in-memory next-id counter.
func (c *Cache) Evict(account types.AccountID, collection types.Collection) {
	c.mu.Lock()
	delete(c.entries, cacheKey{account, collection})
	c.mu.Unlock()
}
