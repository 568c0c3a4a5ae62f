package permission

import "sync"

// Cache holds resolved grant sets for custom roles, keyed by role ID.
// It is an explicit value injected into the [Resolver] so tests can
// construct isolated instances; there is no process-global cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Grants
}

// NewCache creates an empty permission cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Grants)}
}

func (c *Cache) get(roleID string) (Grants, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.entries[roleID]
	return g, ok
}

func (c *Cache) put(roleID string, g Grants) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[roleID] = g
}

// Invalidate drops the cached grant set for a role so the next lookup
// repopulates from the stored definition. This is the cache's only
// mutation entry point besides lazy population; it must be called on
// every custom-role update or delete.
func (c *Cache) Invalidate(roleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, roleID)
}

// Len reports the number of cached roles. Intended for tests and
// introspection.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
