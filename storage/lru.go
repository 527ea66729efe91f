package storage

import (
	"container/list"
	"sync"
)

// lruCache is a fixed-capacity least-recently-used map from object keys to
// content. Both reads and writes refresh recency. All methods are safe for
// concurrent use.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	// clock advances on every write or invalidation. While loads are in
	// flight, written records the clock of each key's last write so that a load
	// started before it cannot populate the cache afterwards. written is
	// cleared once no load is pending.
	clock   uint64
	pending int
	written map[string]uint64

	onEvict func(key string)
}

type lruEntry struct {
	key   string
	value []byte
}

func newLRUCache(capacity int, onEvict func(key string)) *lruCache {
	return &lruCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		written:  make(map[string]uint64),
		onEvict:  onEvict,
	}
}

// get returns a copy of the cached value and promotes the entry.
func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return clone(elem.Value.(*lruEntry).value), true
}

// size returns the length of the cached value without copying it.
func (c *lruCache) size(key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(elem)
	return int64(len(elem.Value.(*lruEntry).value)), true
}

// contains reports presence without changing recency.
func (c *lruCache) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	return ok
}

// beginLoad registers an in-flight load and returns the clock it started at.
// Every beginLoad must be matched by fill, ifUnchanged or endLoad.
func (c *lruCache) beginLoad() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending++
	return c.clock
}

// endLoad ends a load without storing anything.
func (c *lruCache) endLoad() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLoadLocked()
}

// set stores a copy of value after a confirmed write.
func (c *lruCache) set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.markWrittenLocked(key)
	c.setLocked(key, value)
}

// fill ends a load started at since and stores a copy of value unless key was
// written or invalidated after since.
func (c *lruCache) fill(key string, value []byte, since uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endLoadLocked()

	if c.writtenSinceLocked(key, since) {
		return false
	}
	c.setLocked(key, value)
	return true
}

// ifUnchanged ends a load started at since and runs fn under the cache lock
// unless key was written or invalidated after since.
func (c *lruCache) ifUnchanged(key string, since uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endLoadLocked()

	if c.writtenSinceLocked(key, since) {
		return false
	}
	fn()
	return true
}

func (c *lruCache) markWrittenLocked(key string) {
	c.clock++
	if c.pending > 0 {
		c.written[key] = c.clock
	}
}

func (c *lruCache) writtenSinceLocked(key string, since uint64) bool {
	return c.written[key] > since
}

func (c *lruCache) endLoadLocked() {
	c.pending--
	if c.pending == 0 {
		clear(c.written)
	}
}

// setLocked inserts or refreshes key, evicting the least recently used
// entries while the cache is at capacity. Caller must hold c.mu.
func (c *lruCache) setLocked(key string, value []byte) {
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry).value = clone(value)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		oldKey := oldest.Value.(*lruEntry).key
		c.removeLocked(oldest, oldKey)
		if c.onEvict != nil {
			c.onEvict(oldKey)
		}
	}

	c.entries[key] = c.order.PushFront(&lruEntry{key: key, value: clone(value)})
}

// invalidate drops key. Missing keys are ignored.
func (c *lruCache) invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.markWrittenLocked(key)
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(elem, key)
	return true
}

func (c *lruCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// keys returns the cached keys from most to least recently used.
func (c *lruCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*lruEntry).key)
	}
	return keys
}

// removeLocked removes an element from both the list and map.
// Caller must hold c.mu.
func (c *lruCache) removeLocked(elem *list.Element, key string) {
	c.order.Remove(elem)
	delete(c.entries, key)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
