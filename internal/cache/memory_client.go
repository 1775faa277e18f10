package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryClient is a process-local Client. Values are copied on the way in and
// out so callers never share backing arrays.
type MemoryClient struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryClient creates an in-memory client. A positive sweepInterval starts
// a goroutine that drops expired entries until Close is called.
func NewMemoryClient(sweepInterval time.Duration) *MemoryClient {
	c := &MemoryClient{
		data: make(map[string]entry),
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	} else {
		close(c.done)
	}

	return c
}

// Get retrieves a value.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || e.expired(c.now()) {
		return nil, ErrCacheMiss
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value; ttl 0 keeps it until deleted.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := entry{value: stored}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.data[key] = e
	c.mu.Unlock()
	return nil
}

// Delete removes a value.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (c *MemoryClient) Ping(context.Context) error {
	return nil
}

// Len returns the number of live entries.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.data {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the sweeper.
func (c *MemoryClient) Close() error {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *MemoryClient) sweep(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, e := range c.data {
				if e.expired(now) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
