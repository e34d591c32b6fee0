// ABOUTME: Thread-safe TTL set of recently retired keys.
// ABOUTME: The bridge tombstones timed-out correlation tokens here so late replies are recognized and dropped.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

type entry[K comparable] struct {
	key     K
	expires time.Time
}

// Cache is a bounded, TTL-based set. When full, the oldest key is evicted.
// Keys live in a linked list ordered by mark time so eviction and sweeps
// touch the oldest entries first.
type Cache[K comparable] struct {
	mu      sync.Mutex
	index   map[K]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now   func() time.Time
	sweep time.Duration
}

// WithClock replaces time.Now. Tests use it to expire entries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSweepInterval sets how often expired keys are purged in the background.
// Zero disables the sweeper; expired keys are still ignored by lookups.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweep = d }
}

// New creates a cache holding at most maxSize keys for ttl each.
func New[K comparable](ttl time.Duration, maxSize int, opts ...Option) *Cache[K] {
	o := options{now: time.Now, sweep: defaultSweepInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize <= 0 {
		maxSize = 1
	}

	c := &Cache[K]{
		index:   make(map[K]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     o.now,
		done:    make(chan struct{}),
	}
	if o.sweep > 0 {
		go c.sweeper(o.sweep)
	}
	return c
}

// Mark records key, refreshing its expiry if already present.
func (c *Cache[K]) Mark(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Take removes key and reports whether it was live. A late reply consumes
// its tombstone so a duplicate of the same reply is treated as unknown.
func (c *Cache[K]) Take(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return false
	}
	live := c.now().Before(el.Value.(*entry[K]).expires)
	c.order.Remove(el)
	delete(c.index, key)
	return live
}

// Len returns the number of stored keys, including expired ones not yet swept.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Must be called with mu held.
func (c *Cache[K]) markLocked(key K) {
	expires := c.now().Add(c.ttl)
	if el, ok := c.index[key]; ok {
		el.Value.(*entry[K]).expires = expires
		c.order.MoveToBack(el)
		return
	}

	if len(c.index) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.index, front.Value.(*entry[K]).key)
		}
	}
	c.index[key] = c.order.PushBack(&entry[K]{key: key, expires: expires})
}

func (c *Cache[K]) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Sweep drops expired keys. Entries are ordered by mark time, so it stops at
// the first live one.
func (c *Cache[K]) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry[K])
		if now.Before(e.expires) {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.index, e.key)
		el = next
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache[K]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
