// Package lru implements a constant time, generic LRU cache.
//
// The stream reader instantiates it with a capacity of one to hold the most recently materialized sector; the
// archive uses a larger instance to memoize file lookups.
package lru

import (
	"container/list"

	"golang.org/x/exp/constraints"
)

// item is a wrapper type used to track key/value pairs.
type item[K constraints.Ordered, V any] struct {
	key   K
	value V
}

// Cache exposes an interface for an LRU cache.
type Cache[K constraints.Ordered, V any] struct {
	capacity int
	list     *list.List
	elements map[K]*list.Element
}

// New returns a new cache with the given capacity; the capacity must be at least one.
func New[K constraints.Ordered, V any](capacity uint) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: int(capacity),
		list:     list.New(),
		elements: make(map[K]*list.Element),
	}
}

// Get returns the value for the given key if it exists in the cache.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	element, ok := c.elements[key]
	if !ok {
		return *new(V), false
	}

	c.list.MoveToFront(element)

	return element.Value.(*item[K, V]).value, true
}

// Set the value for the given key evicting the least recently used entry if the cache is at capacity, returns a
// boolean indicating whether the key was already in the cache.
func (c *Cache[K, V]) Set(key K, value V) bool {
	ok := c.set(key, value)

	if c.list.Len() <= c.capacity {
		return ok
	}

	c.del(c.list.Back())

	return ok
}

// set adds the key/value pair to the cache.
func (c *Cache[K, V]) set(key K, value V) bool {
	element, ok := c.elements[key]
	if !ok {
		c.elements[key] = c.list.PushFront(&item[K, V]{key: key, value: value})

		return false
	}

	element.Value.(*item[K, V]).value = value

	c.list.MoveToFront(element)

	return true
}

// Purge removes all entries from the cache.
func (c *Cache[K, V]) Purge() {
	c.list.Init()
	c.elements = make(map[K]*list.Element)
}

// Len returns the number of entries currently in the cache.
func (c *Cache[K, V]) Len() int {
	return c.list.Len()
}

// del removes the given element from the cache.
func (c *Cache[K, V]) del(element *list.Element) {
	delete(c.elements, element.Value.(*item[K, V]).key)
	c.list.Remove(element)
}
