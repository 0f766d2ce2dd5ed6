package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// LRUCache keeps at most maxSize entries, evicting the least recently used,
// and treats entries older than ttl as absent.
type LRUCache[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	index   map[K]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time

	hits, misses int64
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

func NewLRUCache[K comparable, V any](maxSize int, ttl time.Duration) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		maxSize: max(maxSize, 1),
		ttl:     ttl,
		index:   make(map[K]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// lookupLocked returns the live element for key, dropping it if expired.
func (c *LRUCache[K, V]) lookupLocked(key K) *list.Element {
	el, ok := c.index[key]
	if !ok {
		return nil
	}
	if c.now().After(el.Value.(*entry[K, V]).expires) {
		c.dropLocked(el)
		return nil
	}
	return el
}

func (c *LRUCache[K, V]) dropLocked(el *list.Element) {
	delete(c.index, el.Value.(*entry[K, V]).key)
	c.order.Remove(el)
}

func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el := c.lookupLocked(key)
	if el == nil {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Set stores value under key with a fresh TTL.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[K, V]{key: key, value: value, expires: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxSize {
		c.dropLocked(c.order.Back())
	}
}

// GetOrCompute returns the cached value for key or stores the result of fn.
// fn runs without the cache lock held, so two callers racing on a miss may
// both compute.
func (c *LRUCache[K, V]) GetOrCompute(key K, fn func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := fn()
	c.Set(key, v)
	return v
}

// CleanExpired drops every expired entry and reports how many went.
func (c *LRUCache[K, V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[K, V]).expires) {
			c.dropLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *LRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *LRUCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.index)}
}
