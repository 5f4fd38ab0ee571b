package model

import "fmt"

// Cache holds one KV entry per decoder layer for a single generation
// session. It is created empty, extended in place by each incremental
// forward call, and must never be shared between concurrent sessions.
type Cache struct {
	entries []*KV
}

// NewCache returns an empty cache with one slot per layer.
func NewCache(numLayers int) *Cache {
	return &Cache{entries: make([]*KV, numLayers)}
}

// NumLayers returns the number of layer slots.
func (c *Cache) NumLayers() int {
	return len(c.entries)
}

// Entry returns the cached state for layer i, or nil when nothing has been
// processed yet.
func (c *Cache) Entry(i int) *KV {
	return c.entries[i]
}

// Length returns the number of positions cached. Every layer advances in
// lock-step within a forward call, so a length disagreement between layers
// means the cache was corrupted or shared between sessions.
func (c *Cache) Length() (int, error) {
	if len(c.entries) == 0 {
		return 0, nil
	}
	n := c.entries[0].Len()
	for i, e := range c.entries[1:] {
		if e.Len() != n {
			return 0, fmt.Errorf("cache: layer 0 holds %d positions but layer %d holds %d", n, i+1, e.Len())
		}
	}
	return n, nil
}

// Reset discards all cached state, making the cache reusable for a new
// independent sequence.
func (c *Cache) Reset() {
	for i := range c.entries {
		c.entries[i] = nil
	}
}

// commit replaces every layer entry at once. Callers compute all entries
// before committing so a failed forward never leaves the cache partially
// advanced.
func (c *Cache) commit(entries []*KV) {
	copy(c.entries, entries)
}
