package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/statlens/statlens-worker/internal/models"
)

// ResultCache memoizes transformation results keyed by input fingerprint.
// It holds at most capacity entries, evicting the least-recently-used when
// full, and independently purges entries older than maxAge. Entry age is
// measured from the timestamp embedded in the bundle (LastSampleAt), not
// from insertion time. Expiry is enforced lazily at Set time only; a Get
// may return an expired-but-unpurged entry.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	maxAge   time.Duration
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	now      func() time.Time

	stats Stats
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

type entry struct {
	key    string
	bundle models.ResultBundle
}

// New constructs a ResultCache with the given capacity and maximum entry age.
func New(capacity int, maxAge time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = 5
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &ResultCache{
		capacity: capacity,
		maxAge:   maxAge,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the bundle stored under key and bumps its recency. A miss has
// no side effect. The returned bundle may be stale; see the type comment.
func (c *ResultCache) Get(key string) (models.ResultBundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return models.ResultBundle{}, false
	}
	c.ll.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*entry).bundle, true
}

// Set stores bundle under key at the most-recently-used position. Expired
// entries are purged first, then the LRU entry is evicted if the cache is
// still at capacity. The two checks are deliberately independent.
func (c *ResultCache) Set(key string, bundle models.ResultBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).bundle = bundle
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictOldestLocked()
	}

	c.items[key] = c.ll.PushFront(&entry{key: key, bundle: bundle})
}

// Len reports the number of retained entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Snapshot returns the current hit/miss/eviction counters.
func (c *ResultCache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *ResultCache) purgeExpiredLocked() {
	now := c.now()
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if now.Sub(e.bundle.LastSampleAt) > c.maxAge {
			c.ll.Remove(el)
			delete(c.items, e.key)
			c.stats.Expirations++
		}
		el = next
	}
}

func (c *ResultCache) evictOldestLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.stats.Evictions++
}
