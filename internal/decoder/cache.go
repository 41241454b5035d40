package decoder

import (
	"container/list"
	"sync"
)

// Estimated bytes held per cache entry besides its key: list element, map
// bucket share and the hash itself.
const entryOverhead = 96

// hashEntry represents an entry in the hash cache.
type hashEntry struct {
	key  string
	hash uint64
}

// hashCache is a thread-safe LRU cache of perceptual hashes bounded by an
// estimated byte budget. A zero budget disables caching.
type hashCache struct {
	mu       sync.Mutex
	maxBytes int64
	bytes    int64
	items    map[string]*list.Element // key -> list element
	order    *list.List               // front is most recently used
}

func newHashCache(maxBytes int64) *hashCache {
	return &hashCache{
		maxBytes: maxBytes,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func entrySize(key string) int64 {
	return int64(len(key)) + entryOverhead
}

// Get retrieves a hash and marks it as recently used.
func (c *hashCache) Get(key string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(element)
	return element.Value.(*hashEntry).hash, true
}

// Put stores a hash, evicting the least recently used entries to stay
// within budget. Entries larger than the whole budget are not stored.
func (c *hashCache) Put(key string, hash uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		element.Value.(*hashEntry).hash = hash
		c.order.MoveToFront(element)
		return
	}

	size := entrySize(key)
	if size > c.maxBytes {
		return
	}
	c.items[key] = c.order.PushFront(&hashEntry{key: key, hash: hash})
	c.bytes += size
	c.evictLocked()
}

// Resize changes the budget, evicting as needed.
func (c *hashCache) Resize(maxBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxBytes = maxBytes
	c.evictLocked()
}

func (c *hashCache) evictLocked() {
	for c.bytes > c.maxBytes {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		entry := c.order.Remove(oldest).(*hashEntry)
		delete(c.items, entry.key)
		c.bytes -= entrySize(entry.key)
	}
}

// Stats returns the entry count, estimated size and budget.
func (c *hashCache) Stats() (entries int, bytes, maxBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items), c.bytes, c.maxBytes
}
