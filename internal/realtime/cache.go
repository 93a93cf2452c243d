package realtime

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DocumentCache holds the most recently applied contents of files being edited.
// Put is an unconditional overwrite: the last write applied wins.
type DocumentCache interface {
	// Get returns cached contents, or "" on a miss
	Get(fileID string) string

	// Lookup distinguishes a miss from cached empty contents
	Lookup(fileID string) (string, bool)

	// Put overwrites the entry and returns content
	Put(fileID, content string) string

	// Invalidate drops the entry so the next join reseeds from the store
	Invalidate(fileID string)

	Len() int
}

// NewDocumentCache returns an unbounded MapCache when maxEntries <= 0,
// otherwise an LRUCache holding at most maxEntries files.
func NewDocumentCache(maxEntries int) (DocumentCache, error) {
	if maxEntries <= 0 {
		return NewMapCache(), nil
	}
	return NewLRUCache(maxEntries)
}

// MapCache keeps every entry for the life of the process.
type MapCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string]string)}
}

func (c *MapCache) Get(fileID string) string {
	content, _ := c.Lookup(fileID)
	return content
}

func (c *MapCache) Lookup(fileID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	content, ok := c.entries[fileID]
	return content, ok
}

func (c *MapCache) Put(fileID, content string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fileID] = content
	return content
}

func (c *MapCache) Invalidate(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fileID)
}

func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LRUCache evicts the least recently used file once full. An evicted file is
// reseeded from the store on its next join.
type LRUCache struct {
	entries *lru.Cache[string, string]
}

func NewLRUCache(maxEntries int) (*LRUCache, error) {
	entries, err := lru.New[string, string](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(fileID string) string {
	content, _ := c.entries.Get(fileID)
	return content
}

func (c *LRUCache) Lookup(fileID string) (string, bool) {
	return c.entries.Get(fileID)
}

func (c *LRUCache) Put(fileID, content string) string {
	c.entries.Add(fileID, content)
	return content
}

func (c *LRUCache) Invalidate(fileID string) {
	c.entries.Remove(fileID)
}

func (c *LRUCache) Len() int {
	return c.entries.Len()
}
