// Package collection provides an ordered container with constant-time key lookup.
package collection

// Indexed keeps items in insertion order alongside an index from each item's key
// to its current position in the slice.
//
// Keys must be unique. Inserting a key that is already present corrupts the index;
// callers check with Find first.
//
// Indexed is not safe for concurrent use.
type Indexed[K comparable, T any] struct {
	items []T
	index map[K]int
	keyFn func(T) K
}

// New creates an empty collection keyed by keyFn.
func New[K comparable, T any](keyFn func(T) K) *Indexed[K, T] {
	return &Indexed[K, T]{
		index: make(map[K]int),
		keyFn: keyFn,
	}
}

// Insert appends item to the end of the collection.
func (c *Indexed[K, T]) Insert(item T) {
	// The current length is the position the item is about to take.
	c.index[c.keyFn(item)] = len(c.items)
	c.items = append(c.items, item)
}

// Find returns the item stored under key.
func (c *Indexed[K, T]) Find(key K) (T, bool) {
	pos, ok := c.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[pos], true
}

// Position returns the slice position recorded for key.
func (c *Indexed[K, T]) Position(key K) (int, bool) {
	pos, ok := c.index[key]
	return pos, ok
}

// Delete removes the item stored under key and shifts every later item down by one.
// Deleting an absent key is a no-op.
//
// Deletions near the front are O(n). The tracked set is bounded by the fetch window,
// so this stays small.
func (c *Indexed[K, T]) Delete(key K) {
	pos, ok := c.index[key]
	if !ok {
		return
	}

	c.items = append(c.items[:pos], c.items[pos+1:]...)
	delete(c.index, key)

	for i := pos; i < len(c.items); i++ {
		c.index[c.keyFn(c.items[i])]--
	}
}

// ReplaceAll discards the current contents and inserts items in order.
func (c *Indexed[K, T]) ReplaceAll(items []T) {
	c.items = make([]T, 0, len(items))
	c.index = make(map[K]int, len(items))
	for _, item := range items {
		c.Insert(item)
	}
}

// All returns the items in order. The returned slice is a copy.
func (c *Indexed[K, T]) All() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of items.
func (c *Indexed[K, T]) Len() int {
	return len(c.items)
}
