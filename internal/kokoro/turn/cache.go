package turn

import (
	"sync"

	"github.com/bdobrica/Kokoro/internal/kokoro/store"
)

// Cache keeps loaded persona records in memory so repeated turns against the
// same persona skip the store lookup and profile decode. Entries live until
// explicitly invalidated; persona edits are rare and always flow through the
// API layer, which invalidates after every write.
type Cache struct {
	mu     sync.RWMutex
	byID   map[string]*store.Persona
	byName map[string]string // slug -> id
}

// NewCache returns an empty persona cache.
func NewCache() *Cache {
	return &Cache{
		byID:   make(map[string]*store.Persona),
		byName: make(map[string]string),
	}
}

// Get returns the cached persona for an ID, or nil.
func (c *Cache) Get(id string) *store.Persona {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// GetByName returns the cached persona for a slug, or nil.
func (c *Cache) GetByName(name string) *store.Persona {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	if !ok {
		return nil
	}
	return c.byID[id]
}

// Put stores a persona under both its ID and slug.
func (c *Cache) Put(p *store.Persona) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[p.ID] = p
	c.byName[p.Name] = p.ID
}

// Invalidate drops one persona from the cache.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byID[id]; ok {
		delete(c.byName, p.Name)
		delete(c.byID, id)
	}
}

// Clear drops every cached persona.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]*store.Persona)
	c.byName = make(map[string]string)
}
