package cache

import (
	"context"
	"sync"
	"time"
)

// LRUCache is an in-process Cache bounded by entry count, with a TTL per
// entry. The least recently read or written entry is evicted first.
type LRUCache[T any] struct {
	mu    sync.Mutex
	limit int
	ttl   time.Duration
	now   func() time.Time

	index map[string]*entry[T]
	// head is a sentinel: head.next is the most recent entry, head.prev the
	// eviction candidate.
	head entry[T]
}

type entry[T any] struct {
	key        string
	value      T
	deadline   time.Time
	prev, next *entry[T]
}

// NewLRUCache returns a cache holding at most maxSize entries for ttl each.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	c := &LRUCache[T]{
		limit: max(maxSize, 1),
		ttl:   ttl,
		now:   time.Now,
		index: make(map[string]*entry[T], maxSize),
	}
	c.head.prev, c.head.next = &c.head, &c.head
	return c
}

func (c *LRUCache[T]) unlink(e *entry[T]) {
	e.prev.next, e.next.prev = e.next, e.prev
	e.prev, e.next = nil, nil
}

func (c *LRUCache[T]) pushFront(e *entry[T]) {
	e.prev, e.next = &c.head, c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRUCache[T]) drop(e *entry[T]) {
	c.unlink(e)
	delete(c.index, e.key)
}

func (c *LRUCache[T]) Get(_ context.Context, key string) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index[key]
	switch {
	case !ok:
		var zero T
		return zero, false, nil
	case c.now().After(e.deadline):
		c.drop(e)
		var zero T
		return zero, false, nil
	}
	c.unlink(e)
	c.pushFront(e)
	return e.value, true, nil
}

func (c *LRUCache[T]) Set(_ context.Context, key string, value T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(c.ttl)
	if e, ok := c.index[key]; ok {
		e.value, e.deadline = value, deadline
		c.unlink(e)
		c.pushFront(e)
		return nil
	}

	e := &entry[T]{key: key, value: value, deadline: deadline}
	c.index[key] = e
	c.pushFront(e)
	if len(c.index) > c.limit {
		c.drop(c.head.prev)
	}
	return nil
}

func (c *LRUCache[T]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index[key]; ok {
		c.drop(e)
	}
	return nil
}

// CleanExpired drops every expired entry and returns how many it dropped.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for e := c.head.next; e != &c.head; {
		next := e.next
		if now.After(e.deadline) {
			c.drop(e)
			n++
		}
		e = next
	}
	return n
}

// Size returns the number of entries, expired ones included until swept.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
