// Package badger implements a persistent chunk cache on BadgerDB.
//
// The recency index lives in memory and is rebuilt from disk on Open, so
// cached chunks survive restarts. Access times are persisted in batches by
// a background flusher; a crash loses only the most recent recency updates,
// never chunk data.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/chunk"
)

// Key namespace:
//
// Data Type     Prefix  Key Format            Value
// ==================================================================
// Chunk data    "c:"    c:<binary chunk key>  raw bytes
// Chunk meta    "a:"    a:<binary chunk key>  access unix nanos + size (16 bytes)
const (
	prefixChunk = "c:"
	prefixMeta  = "a:"
	metaLen     = 16
)

// Config configures the badger-backed cache.
type Config struct {
	// Path is the badger directory.
	Path string

	// Capacity is the byte ceiling for chunk data.
	Capacity int64

	// SyncWrites makes every Put durable before returning.
	SyncWrites bool

	// FlushInterval controls how often access times are persisted.
	FlushInterval time.Duration

	// GCInterval controls how often the value log is garbage collected.
	GCInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.GCInterval <= 0 {
		c.GCInterval = 5 * time.Minute
	}
}

// Cache is a cache.Cache backed by BadgerDB.
type Cache struct {
	db      *badgerdb.DB
	cfg     Config
	metrics cache.Metrics
	counts  cache.Counters

	mu    sync.Mutex
	index *cache.Index
	dirty map[chunk.Key]int64

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open opens (or creates) the cache at cfg.Path and rebuilds the recency
// index from what is on disk. metrics may be nil.
func Open(ctx context.Context, cfg Config, metrics cache.Metrics) (*Cache, error) {
	if cfg.Path == "" {
		return nil, errors.New("badger cache: path is required")
	}
	if cfg.Capacity <= 0 {
		return nil, errors.New("badger cache: capacity must be positive")
	}
	cfg.applyDefaults()

	opts := badgerdb.DefaultOptions(cfg.Path).
		WithLogger(badgerLogger{}).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache at %s: %w", cfg.Path, err)
	}

	c := &Cache{
		db:      db,
		cfg:     cfg,
		metrics: metrics,
		index:   cache.NewIndex(cfg.Capacity),
		dirty:   make(map[chunk.Key]int64),
		stop:    make(chan struct{}),
	}

	if err := c.rebuild(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	c.wg.Add(2)
	go c.flushLoop()
	go c.gcLoop()

	logger.Info("Chunk cache opened",
		"path", cfg.Path,
		logger.KeyCacheSize, c.index.Bytes(),
		logger.KeyCacheCapacity, cfg.Capacity,
		"entries", c.index.Len())

	return c, nil
}

func chunkKey(k chunk.Key) []byte {
	raw, _ := k.MarshalBinary()
	return append([]byte(prefixChunk), raw...)
}

func metaKey(k chunk.Key) []byte {
	raw, _ := k.MarshalBinary()
	return append([]byte(prefixMeta), raw...)
}

func encodeMeta(accessed int64, size int64) []byte {
	buf := make([]byte, metaLen)
	binary.BigEndian.PutUint64(buf[0:8], uint64(accessed))
	binary.BigEndian.PutUint64(buf[8:16], uint64(size))
	return buf
}

func decodeMeta(v []byte) (accessed int64, size int64, ok bool) {
	if len(v) != metaLen {
		return 0, 0, false
	}
	return int64(binary.BigEndian.Uint64(v[0:8])), int64(binary.BigEndian.Uint64(v[8:16])), true
}

type diskEntry struct {
	key      chunk.Key
	size     int64
	accessed int64
}

// rebuild loads every chunk from disk into the index, oldest access first,
// and trims anything above capacity (the capacity may have been lowered
// since the last run).
func (c *Cache) rebuild(ctx context.Context) error {
	entries := make(map[chunk.Key]*diskEntry)
	var orphans [][]byte

	err := c.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixChunk)

		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				it.Close()
				return err
			}
			item := it.Item()
			var k chunk.Key
			if err := k.UnmarshalBinary(item.Key()[len(prefixChunk):]); err != nil {
				continue
			}
			entries[k] = &diskEntry{key: k, size: item.ValueSize()}
		}
		it.Close()

		opts.PrefetchValues = true
		opts.Prefix = []byte(prefixMeta)
		it = txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var k chunk.Key
			if err := k.UnmarshalBinary(item.Key()[len(prefixMeta):]); err != nil {
				continue
			}
			e, ok := entries[k]
			if !ok {
				orphans = append(orphans, item.KeyCopy(nil))
				continue
			}
			_ = item.Value(func(v []byte) error {
				if accessed, size, ok := decodeMeta(v); ok {
					e.accessed, e.size = accessed, size
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan badger cache: %w", err)
	}

	ordered := make([]*diskEntry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].accessed < ordered[j].accessed
	})

	var evicted []cache.Entry
	for _, e := range ordered {
		ev, ok := c.index.Add(e.key, e.size)
		if !ok {
			evicted = append(evicted, cache.Entry{Key: e.key, Size: e.size})
			continue
		}
		evicted = append(evicted, ev...)
	}

	if len(orphans) > 0 {
		wb := c.db.NewWriteBatch()
		for _, k := range orphans {
			_ = wb.Delete(k)
		}
		if err := wb.Flush(); err != nil {
			logger.Warn("Failed to remove orphaned chunk metadata", logger.Err(err))
		}
	}
	c.deleteEvicted(evicted)
	cache.RecordSize(c.metrics, c.index.Len(), c.index.Bytes())
	return nil
}

func (c *Cache) Get(_ context.Context, key chunk.Key) ([]byte, bool) {
	start := time.Now()

	c.mu.Lock()
	indexed := c.index.Touch(key)
	if indexed {
		c.dirty[key] = start.UnixNano()
	}
	c.mu.Unlock()

	if !indexed {
		c.counts.Miss()
		cache.ObserveGet(c.metrics, false, 0, start)
		return nil, false
	}

	var data []byte
	err := c.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(chunkKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			logger.Warn("Chunk cache read failed, treating as miss",
				logger.KeyChunkIndex, key.Index, logger.Err(err))
		}
		c.mu.Lock()
		c.index.Remove(key)
		delete(c.dirty, key)
		c.mu.Unlock()

		c.counts.Miss()
		cache.ObserveGet(c.metrics, false, 0, start)
		return nil, false
	}

	c.counts.Hit()
	cache.ObserveGet(c.metrics, true, len(data), start)
	return data, true
}

func (c *Cache) Put(_ context.Context, key chunk.Key, data []byte) error {
	start := time.Now()
	size := int64(len(data))

	c.mu.Lock()
	if c.index.Touch(key) {
		c.dirty[key] = start.UnixNano()
		c.mu.Unlock()
		return nil
	}
	if size > c.index.Capacity() {
		c.mu.Unlock()
		return cache.ErrTooLarge
	}
	c.mu.Unlock()

	err := c.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(chunkKey(key), data); err != nil {
			return err
		}
		return txn.Set(metaKey(key), encodeMeta(start.UnixNano(), size))
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrDBClosed) {
			return cache.ErrClosed
		}
		return fmt.Errorf("failed to store chunk %s: %w", key, err)
	}

	c.mu.Lock()
	evicted, _ := c.index.Add(key, size)
	for _, e := range evicted {
		delete(c.dirty, e.Key)
	}
	entries, bytes := c.index.Len(), c.index.Bytes()
	c.mu.Unlock()

	c.deleteEvicted(evicted)
	cache.RecordSize(c.metrics, entries, bytes)
	cache.ObservePut(c.metrics, len(data), start)
	return nil
}

// deleteEvicted removes evicted chunks from disk. The entries are already
// gone from the index, so a failure here only wastes disk space until the
// next successful eviction or restart.
func (c *Cache) deleteEvicted(evicted []cache.Entry) {
	if len(evicted) == 0 {
		return
	}
	c.counts.Evicted(len(evicted))
	cache.RecordEvictions(c.metrics, len(evicted))

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range evicted {
		if err := wb.Delete(chunkKey(e.Key)); err != nil {
			logger.Warn("Chunk eviction failed", logger.Err(err))
			return
		}
		if err := wb.Delete(metaKey(e.Key)); err != nil {
			logger.Warn("Chunk eviction failed", logger.Err(err))
			return
		}
	}
	if err := wb.Flush(); err != nil {
		logger.Warn("Chunk eviction failed", logger.Evicted(len(evicted)), logger.Err(err))
		return
	}
	logger.Debug("Evicted chunks", logger.Evicted(len(evicted)))
}

func (c *Cache) Contains(_ context.Context, key chunk.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Contains(key)
}

func (c *Cache) Purge(_ context.Context) error {
	c.mu.Lock()
	c.index.Reset()
	c.dirty = make(map[chunk.Key]int64)
	c.mu.Unlock()

	if err := c.db.DropPrefix([]byte(prefixChunk), []byte(prefixMeta)); err != nil {
		return fmt.Errorf("failed to purge chunk cache: %w", err)
	}
	cache.RecordSize(c.metrics, 0, 0)
	logger.Info("Chunk cache purged", "path", c.cfg.Path)
	return nil
}

func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	s := cache.Stats{
		Type:     "badger",
		Entries:  c.index.Len(),
		Bytes:    c.index.Bytes(),
		Capacity: c.index.Capacity(),
	}
	c.mu.Unlock()
	c.counts.Fill(&s)
	return s
}

// Healthcheck verifies badger can open a read transaction.
func (c *Cache) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.db.IsClosed() {
		return cache.ErrClosed
	}
	if err := c.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// flushAccess persists pending access times.
func (c *Cache) flushAccess() {
	c.mu.Lock()
	if len(c.dirty) == 0 {
		c.mu.Unlock()
		return
	}
	pending := c.dirty
	c.dirty = make(map[chunk.Key]int64, len(pending))
	sizes := make(map[chunk.Key]int64, len(pending))
	for k := range pending {
		if size, ok := c.index.Size(k); ok {
			sizes[k] = size
		}
	}
	c.mu.Unlock()

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for k, accessed := range pending {
		size, ok := sizes[k]
		if !ok {
			continue
		}
		if err := wb.Set(metaKey(k), encodeMeta(accessed, size)); err != nil {
			logger.Warn("Failed to persist chunk access times", logger.Err(err))
			return
		}
	}
	if err := wb.Flush(); err != nil {
		logger.Warn("Failed to persist chunk access times", logger.Err(err))
	}
}

func (c *Cache) flushLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.flushAccess()
		}
	}
}

func (c *Cache) gcLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// RunValueLogGC rewrites at most one file per call.
			for {
				if err := c.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}

// Close flushes access times and closes the database.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.flushAccess()
		err = c.db.Close()
	})
	return err
}

var _ cache.Cache = (*Cache)(nil)
