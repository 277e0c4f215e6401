// Package memory provides a process-local chunk cache. It is used in tests
// and when cache.type is "memory"; contents do not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/chunk"
)

// Cache is an in-memory cache.Cache.
type Cache struct {
	mu      sync.Mutex
	index   *cache.Index
	data    map[chunk.Key][]byte
	closed  bool
	counts  cache.Counters
	metrics cache.Metrics
}

// New returns an empty cache bounded to capacity bytes. metrics may be nil.
func New(capacity int64, metrics cache.Metrics) *Cache {
	return &Cache{
		index:   cache.NewIndex(capacity),
		data:    make(map[chunk.Key][]byte),
		metrics: metrics,
	}
}

func (c *Cache) Get(_ context.Context, key chunk.Key) ([]byte, bool) {
	start := time.Now()

	c.mu.Lock()
	var (
		data []byte
		ok   bool
	)
	if !c.closed && c.index.Touch(key) {
		data, ok = c.data[key]
	}
	c.mu.Unlock()

	if ok {
		c.counts.Hit()
	} else {
		c.counts.Miss()
	}
	cache.ObserveGet(c.metrics, ok, len(data), start)
	return data, ok
}

func (c *Cache) Put(_ context.Context, key chunk.Key, data []byte) error {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cache.ErrClosed
	}
	if c.index.Touch(key) {
		return nil
	}

	evicted, ok := c.index.Add(key, int64(len(data)))
	if !ok {
		return cache.ErrTooLarge
	}
	c.data[key] = append([]byte(nil), data...)
	for _, e := range evicted {
		delete(c.data, e.Key)
	}

	c.counts.Evicted(len(evicted))
	cache.RecordEvictions(c.metrics, len(evicted))
	cache.RecordSize(c.metrics, c.index.Len(), c.index.Bytes())
	cache.ObservePut(c.metrics, len(data), start)
	return nil
}

func (c *Cache) Contains(_ context.Context, key chunk.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Contains(key)
}

func (c *Cache) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Reset()
	c.data = make(map[chunk.Key][]byte)
	cache.RecordSize(c.metrics, 0, 0)
	return nil
}

func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	s := cache.Stats{
		Type:     "memory",
		Entries:  c.index.Len(),
		Bytes:    c.index.Bytes(),
		Capacity: c.index.Capacity(),
	}
	c.mu.Unlock()
	c.counts.Fill(&s)
	return s
}

func (c *Cache) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cache.ErrClosed
	}
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.data = nil
	c.index.Reset()
	return nil
}

var _ cache.Cache = (*Cache)(nil)
