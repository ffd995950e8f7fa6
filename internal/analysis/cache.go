package analysis

import (
	"container/list"
	"math"
	"sync"
)

// frameCache is a bounded LRU of fused frame scores keyed by timestamp in
// milliseconds. Passes of one Analyze call share it.
type frameCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[int64]*list.Element
	hits     int
	misses   int
}

type cacheEntry struct {
	key   int64
	score FrameScore
}

func newFrameCache(capacity int) *frameCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &frameCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[int64]*list.Element, capacity),
	}
}

func cacheKey(ts float64) int64 {
	return int64(math.Round(ts * 1000))
}

func (c *frameCache) get(ts float64) (FrameScore, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[cacheKey(ts)]; ok {
		c.order.MoveToFront(el)
		c.hits++
		return el.Value.(*cacheEntry).score, true
	}
	c.misses++
	return FrameScore{}, false
}

func (c *frameCache) put(ts float64, score FrameScore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(ts)
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).score = score
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, score: score})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *frameCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *frameCache) counters() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
