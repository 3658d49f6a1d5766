package ise

import (
	"container/list"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/localidx/fsindex/internal/coretypes"
)

// searchContext summarizes a cached result set's match composition and
// carries suggested follow-up queries (spec.md §4.2).
type searchContext struct {
	ExactCount     int
	PartialCount   int
	FuzzyCount     int
	DirectoryCount int
	FileCount      int
	Suggestions    []string
}

type cacheEntry struct {
	results   []coretypes.Entry
	timestamp time.Time
	context   searchContext
	elem      *list.Element
}

// contextualCache is query -> {results, timestamp, context} with a 5 min
// TTL (enforced by go-cache's own janitor) and a hard entry cap enforced by
// hand-rolled FIFO eviction of the oldest 10% on overflow, since go-cache
// has no count-based eviction of its own (spec.md §4.2).
type contextualCache struct {
	mu       sync.Mutex
	backing  *gocache.Cache
	order    *list.List // front = oldest
	cap      int
	ttl      time.Duration
}

func newContextualCache(ttl time.Duration, cap int) *contextualCache {
	return &contextualCache{
		backing: gocache.New(ttl, ttl/2),
		order:   list.New(),
		cap:     cap,
		ttl:     ttl,
	}
}

func (c *contextualCache) get(query string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.backing.Get(query)
	if !ok {
		return cacheEntry{}, false
	}
	return v.(cacheEntry), true
}

func (c *contextualCache) set(query string, results []coretypes.Entry, ctx searchContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.backing.Get(query); ok {
		c.order.Remove(prev.(cacheEntry).elem)
	}

	elem := c.order.PushBack(query)
	c.backing.Set(query, cacheEntry{results: results, timestamp: time.Now(), context: ctx, elem: elem}, c.ttl)

	if c.order.Len() <= c.cap {
		return
	}
	evict := c.order.Len() / 10
	if evict == 0 {
		evict = 1
	}
	for i := 0; i < evict && c.order.Len() > 0; i++ {
		front := c.order.Front()
		if front == nil {
			break
		}
		c.order.Remove(front)
		c.backing.Delete(front.Value.(string))
	}
}

func (c *contextualCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backing.ItemCount()
}
