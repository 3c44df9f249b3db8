package snapshot

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/signalsfoundry/fibertrace/kb"
	"github.com/signalsfoundry/fibertrace/model"
)

// Cache lookup results reported to the CacheRecorder.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheShared = "shared"
)

// CacheRecorder receives one call per IndexCache lookup.
type CacheRecorder interface {
	IncIndexCache(result string)
}

// LoadFunc fetches the snapshot for a version, typically from the store.
type LoadFunc func(ctx context.Context, version string) (*model.Snapshot, error)

// IndexCache keeps the topology indexes of recently used snapshot versions.
// Indexes are immutable, so a cached one can be handed to any number of
// concurrent traces. Concurrent misses for the same version share one build.
type IndexCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	max     int

	flight   singleflight.Group
	recorder CacheRecorder
}

type cacheEntry struct {
	version string
	index   *kb.Index
}

// NewIndexCache returns a cache holding at most maxEntries indexes. A
// non-positive maxEntries is treated as 1.
func NewIndexCache(maxEntries int, recorder CacheRecorder) *IndexCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &IndexCache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		max:      maxEntries,
		recorder: recorder,
	}
}

// Get returns the cached index for version without building it.
func (c *IndexCache) Get(version string) (*kb.Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[version]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).index, true
}

// Put caches idx under version, evicting the least recently used entry when
// the cache is full.
func (c *IndexCache) Put(version string, idx *kb.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[version]; ok {
		el.Value.(*cacheEntry).index = idx
		c.lru.MoveToFront(el)
		return
	}
	c.entries[version] = c.lru.PushFront(&cacheEntry{version: version, index: idx})
	for c.lru.Len() > c.max {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).version)
	}
}

// GetOrBuild returns the index for version, loading and indexing the snapshot
// on a miss. Load errors are returned as-is and not cached.
//
// The shared build is detached from the cancellation of whichever caller
// started it; each caller stops waiting when its own ctx is done.
func (c *IndexCache) GetOrBuild(ctx context.Context, version string, load LoadFunc) (*kb.Index, error) {
	if idx, ok := c.Get(version); ok {
		c.record(CacheHit)
		return idx, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(version, func() (interface{}, error) {
		snap, err := load(buildCtx, version)
		if err != nil {
			return nil, err
		}
		idx := kb.Build(snap)
		c.Put(version, idx)
		return idx, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			c.record(CacheShared)
		} else {
			c.record(CacheMiss)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*kb.Index), nil
	}
}

// Len returns the number of cached indexes.
func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *IndexCache) record(result string) {
	if c.recorder != nil {
		c.recorder.IncIndexCache(result)
	}
}
