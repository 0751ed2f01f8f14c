package publish

import "sync"

// Cache holds the most recently generated artifacts so the gateway can
// serve feeds and sitemaps from memory. The sync worker fills it on
// every rebuild; request handlers only read.
type Cache struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]Artifact)}
}

// Put stores artifacts, replacing any previous version under the same key.
func (c *Cache) Put(artifacts ...Artifact) {
	c.mu.Lock()
	for _, a := range artifacts {
		c.items[a.Key()] = a
	}
	c.mu.Unlock()
}

// Get returns the cached artifact for a site and name.
func (c *Cache) Get(site, name string) (Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.items[site+"/"+name]
	return a, ok
}

// Len reports how many artifacts are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
