package fs

import (
	"sync"
	"time"

	"github.com/beevik/etree"
)

// cacheEntry is a parsed document together with the file stamp it was read at.
type cacheEntry struct {
	doc     *etree.Document
	modTime time.Time
	size    int64
}

// cache keeps parsed documents keyed by path relative to the store root.
// Entries are trusted only while the file keeps the same mtime and size.
type cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	hits    int64
	misses  int64
}

func newCache() *cache {
	return &cache{entries: make(map[string]*cacheEntry)}
}

// Get returns a copy of the cached document if it is fresh.
func (c *cache) Get(relPath string, modTime time.Time, size int64) (*etree.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[relPath]
	if !ok || !e.modTime.Equal(modTime) || e.size != size {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.doc.Copy(), true
}

// Set stores a private copy of doc.
func (c *cache) Set(relPath string, doc *etree.Document, modTime time.Time, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[relPath] = &cacheEntry{doc: doc.Copy(), modTime: modTime, size: size}
}

func (c *cache) Delete(relPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, relPath)
}

// Prune removes entries that are not in the keep set.
func (c *cache) Prune(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.entries {
		if !keep[p] {
			delete(c.entries, p)
		}
	}
}

func (c *cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *cache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
