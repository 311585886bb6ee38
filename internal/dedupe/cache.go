// ABOUTME: Size-bounded TTL set with oldest-first eviction and lazy expiry
// ABOUTME: Time comes from an injected clock so expiry is testable

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/coven-timekeeper/internal/clock"
)

type entry struct {
	key    string
	marked time.Time
}

// Cache is safe for concurrent use. Keys are kept in mark order, oldest at
// the front, which is also expiry order.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	clock   clock.Clock
}

// New creates a cache holding at most maxSize keys for ttl each.
func New(ttl time.Duration, maxSize int, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real()
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clk,
	}
}

// Check reports whether key was marked within the TTL.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key, c.clock.Now())
}

// CheckAndMark reports whether key is a duplicate and marks it if it is not.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.liveLocked(key, now) {
		return true
	}
	c.markLocked(key, now)
	return false
}

// Mark records key as seen now, refreshing it if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key, c.clock.Now())
}

// Forget removes key so it may be accepted again.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.seen[key]; ok {
		c.order.Remove(elem)
		delete(c.seen, key)
	}
}

// Len returns the number of keys held, including expired ones not yet pruned.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) liveLocked(key string, now time.Time) bool {
	elem, ok := c.seen[key]
	if !ok {
		return false
	}
	return now.Sub(elem.Value.(*entry).marked) < c.ttl
}

func (c *Cache) markLocked(key string, now time.Time) {
	c.pruneLocked(now)

	if elem, ok := c.seen[key]; ok {
		elem.Value.(*entry).marked = now
		c.order.MoveToBack(elem)
		return
	}
	for len(c.seen) >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.seen[key] = c.order.PushBack(&entry{key: key, marked: now})
}

// pruneLocked drops expired keys from the front of the order list.
func (c *Cache) pruneLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if now.Sub(front.Value.(*entry).marked) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.seen, elem.Value.(*entry).key)
}
