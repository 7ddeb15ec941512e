// Package blockcache implements the Cache collaborator on top of
// github.com/hashicorp/golang-lru/v2. It is a pure hint: every miss is
// reported as absent, never as an error, and every entry is recomputable
// from the byte store.
package blockcache

import (
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blocktree/blocktree/storage"
)

const defaultSize = 4096

// Cache implements storage.Cache with one LRU per slot kind, so a flood
// of PushCache calls against one slot (e.g. childBlocks) cannot evict
// hot entries in another (e.g. next).
type Cache struct {
	mu   sync.Mutex
	lrus map[storage.Slot]*lru.Cache[string, any]
	size int
}

// New creates a Cache with the given per-slot capacity. size <= 0 uses a
// sane default.
func New(size int) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	return &Cache{lrus: make(map[storage.Slot]*lru.Cache[string, any]), size: size}
}

func (c *Cache) lruFor(slot storage.Slot) *lru.Cache[string, any] {
	if l, ok := c.lrus[slot]; ok {
		return l
	}
	l, err := lru.New[string, any](c.size)
	if err != nil {
		// Only possible when size <= 0, which New never allows through.
		panic("blockcache: invalid lru size")
	}
	c.lrus[slot] = l
	return l
}

func key(block []byte) string { return hex.EncodeToString(block) }

// ReadCache returns the cached value for (block, slot), if any.
func (c *Cache) ReadCache(block []byte, slot storage.Slot) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruFor(slot).Get(key(block))
}

// WriteCache stores value under (block, slot), overwriting any prior
// entry.
func (c *Cache) WriteCache(block []byte, slot storage.Slot, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lruFor(slot).Add(key(block), value)
}

// PushCache appends value to the list cached under (block, slot). Lists
// are stored as [][]byte; a non-list existing entry is replaced rather
// than corrupting the cache (the cache is always safe to discard).
func (c *Cache) PushCache(block []byte, slot storage.Slot, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lruFor(slot)
	k := key(block)
	var list [][]byte
	if existing, ok := l.Get(k); ok {
		if asList, ok := existing.([][]byte); ok {
			list = asList
		}
	}
	v, ok := value.([]byte)
	if !ok {
		return
	}
	list = append(list, v)
	l.Add(k, list)
}
