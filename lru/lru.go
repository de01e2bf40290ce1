// Package lru implements the bounded least-recently-used map that backs
// every invocation.
//
// Recency is a single doubly linked list: head is the most recently used
// entry, tail the least. Eviction always removes the tail, so there is
// exactly one candidate at any time.
//
// A Cache is owned by one invocation and is not safe for concurrent use.
package lru

import (
	"github.com/saiset-co/sai-lru/types"
)

type node struct {
	key   string
	value string

	prev *node
	next *node
}

type Cache struct {
	data     map[string]*node
	capacity int
	head     *node
	tail     *node
}

func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, types.Errorf(types.ErrInvalidCapacity, "capacity must be positive, got %d", capacity)
	}

	return &Cache{
		data:     make(map[string]*node, capacity),
		capacity: capacity,
	}, nil
}

// Get returns the value for key and marks it most recently used.
func (c *Cache) Get(key string) (string, bool) {
	n, ok := c.data[key]
	if !ok {
		return "", false
	}

	c.moveToFront(n)
	return n.value, true
}

// Peek returns the value for key without touching recency.
func (c *Cache) Peek(key string) (string, bool) {
	if n, ok := c.data[key]; ok {
		return n.value, true
	}
	return "", false
}

// Put inserts or replaces key as the most recently used entry. When a new
// key is inserted into a full cache the least recently used entry is
// evicted first and returned.
func (c *Cache) Put(key, value string) (evicted types.CacheEntry, ok bool) {
	if n, has := c.data[key]; has {
		n.value = value
		c.moveToFront(n)
		return types.CacheEntry{}, false
	}

	if len(c.data) >= c.capacity {
		evicted, ok = c.removeTail()
	}

	n := &node{key: key, value: value}
	c.data[key] = n
	c.addToFront(n)

	return evicted, ok
}

// Entries lists the cache oldest first, the order snapshots are stored in.
func (c *Cache) Entries() []types.CacheEntry {
	entries := make([]types.CacheEntry, 0, len(c.data))
	for n := c.tail; n != nil; n = n.prev {
		entries = append(entries, types.CacheEntry{Key: n.key, Value: n.value})
	}
	return entries
}

func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for n := c.tail; n != nil; n = n.prev {
		keys = append(keys, n.key)
	}
	return keys
}

func (c *Cache) Len() int {
	return len(c.data)
}

func (c *Cache) Capacity() int {
	return c.capacity
}

func (c *Cache) moveToFront(n *node) {
	if n == c.head {
		return
	}
	c.unlink(n)
	c.addToFront(n)
}

func (c *Cache) addToFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n

	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (c *Cache) removeTail() (types.CacheEntry, bool) {
	if c.tail == nil {
		return types.CacheEntry{}, false
	}

	n := c.tail
	c.unlink(n)
	delete(c.data, n.key)

	return types.CacheEntry{Key: n.key, Value: n.value}, true
}
