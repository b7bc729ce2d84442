package runtime

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// WhichCache memoizes resolved executable paths per container.
// An empty path is a cached negative result. Entries never expire; Reset
// starts a new generation.
type WhichCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]string
	group   singleflight.Group
}

// NewWhichCache creates an empty cache.
func NewWhichCache() *WhichCache {
	return &WhichCache{entries: make(map[string]map[string]string)}
}

// Get returns the cached path for command in container.
func (c *WhichCache) Get(container, command string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	path, ok := c.entries[container][command]
	return path, ok
}

// Put stores path for command in container.
func (c *WhichCache) Put(container, command, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byCommand, ok := c.entries[container]
	if !ok {
		byCommand = make(map[string]string)
		c.entries[container] = byCommand
	}
	byCommand[command] = path
}

// Resolve runs fn at most once at a time per key and caches its result.
// Errors from fn are returned to every waiter and are not cached.
func (c *WhichCache) Resolve(container, command string, fn func() (string, error)) (string, error) {
	v, err, _ := c.group.Do(container+"\x00"+command, func() (any, error) {
		path, err := fn()
		if err != nil {
			return "", err
		}
		c.Put(container, command, path)
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Forget drops every entry for container.
func (c *WhichCache) Forget(container string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, container)
}

// Reset drops all entries.
func (c *WhichCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]map[string]string)
}

// Len returns the number of cached entries.
func (c *WhichCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, byCommand := range c.entries {
		n += len(byCommand)
	}
	return n
}
