package cache

import (
	"sync"
	"time"
)

// entry represents a cached value with expiration
type entry[V any] struct {
	value      V
	expiration time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// Memory is an in-memory TTL cache keyed by string. A background
// goroutine evicts expired entries until Close is called.
type Memory[V any] struct {
	items map[string]entry[V]
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache whose entries live for ttl and are swept every
// sweep interval. A non-positive sweep defaults to five minutes.
func New[V any](ttl, sweep time.Duration) *Memory[V] {
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}

	c := &Memory[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	go c.cleanupExpired(sweep)

	return c
}

// Set stores a value in the cache
func (c *Memory[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = entry[V]{
		value:      value,
		expiration: c.now().Add(c.ttl),
	}
}

// Get retrieves a value that has not expired yet
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.items[key]
	if !exists || e.expired(c.now()) {
		var zero V
		return zero, false
	}

	return e.value, true
}

// Clear removes all items from the cache
func (c *Memory[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]entry[V])
}

// Size returns the number of stored items, expired or not
func (c *Memory[V]) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the cleanup goroutine. The cache stays usable.
func (c *Memory[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// sweep removes every expired entry
func (c *Memory[V]) sweep() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
		}
	}
}

func (c *Memory[V]) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}
