package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// LRUCache holds up to maxEntries values, each expiring ttl after its last
// Set. Eviction order is least recently touched first.
type LRUCache[T any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	byKey      map[string]*list.Element
	order      *list.List
}

type entry[T any] struct {
	key      string
	value    T
	deadline time.Time
}

func NewLRUCache[T any](maxEntries int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxEntries: maxEntries,
		ttl:        ttl,
		byKey:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the cached value for key. An expired entry is removed on the
// spot and reported as a miss.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.byKey[key]
	if !ok {
		return zero, false
	}

	e := el.Value.(*entry[T])
	if time.Now().After(e.deadline) {
		c.drop(el)
		return zero, false
	}

	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key, refreshing the TTL. When the cache is full the
// least recently used entry is evicted.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, deadline: time.Now().Add(c.ttl)}

	if el, ok := c.byKey[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}

	c.byKey[key] = c.order.PushFront(e)
	if c.order.Len() > c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.drop(oldest)
		}
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		c.drop(el)
	}
}

// DeletePrefix removes every key with the given prefix and returns how many
// entries were dropped. Report caches key entries by month, so a single write
// invalidates the whole slice.
func (c *LRUCache[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweep(func(e *entry[T]) bool {
		return strings.HasPrefix(e.key, prefix)
	})
}

// CleanExpired removes every entry past its deadline and returns the count.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	return c.sweep(func(e *entry[T]) bool {
		return now.After(e.deadline)
	})
}

// sweep removes every entry matching the predicate. Callers hold the lock.
func (c *LRUCache[T]) sweep(match func(*entry[T]) bool) int {
	var doomed []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		if match(el.Value.(*entry[T])) {
			doomed = append(doomed, el)
		}
	}
	for _, el := range doomed {
		c.drop(el)
	}
	return len(doomed)
}

// drop removes one element. Callers hold the lock.
func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.byKey, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byKey)
}
