// Package cachetest holds the behavioural suite every cache.Cache
// implementation must pass.
package cachetest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/chunk"
)

// Factory builds a fresh, empty cache bounded to capacity bytes. The
// factory is responsible for registering cleanup.
type Factory func(t *testing.T, capacity int64) cache.Cache

// RunConformanceSuite runs all cache behaviour tests against newCache.
func RunConformanceSuite(t *testing.T, newCache Factory) {
	t.Run("GetMissingIsMiss", func(t *testing.T) { testGetMissing(t, newCache) })
	t.Run("PutThenGet", func(t *testing.T) { testPutThenGet(t, newCache) })
	t.Run("PutIsIdempotent", func(t *testing.T) { testPutIdempotent(t, newCache) })
	t.Run("CapacityAndLRU", func(t *testing.T) { testCapacityLRU(t, newCache) })
	t.Run("OversizedRejected", func(t *testing.T) { testOversized(t, newCache) })
	t.Run("Purge", func(t *testing.T) { testPurge(t, newCache) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, newCache) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newCache) })
}

func payload(i int64, size int) []byte {
	return bytes.Repeat([]byte{byte(i)}, size)
}

func k(i int64) chunk.Key {
	return chunk.NewKey(-100, 7, i)
}

func testGetMissing(t *testing.T, newCache Factory) {
	c := newCache(t, 1024)
	ctx := context.Background()

	data, ok := c.Get(ctx, k(0))
	assert.False(t, ok)
	assert.Nil(t, data)
	assert.False(t, c.Contains(ctx, k(0)))
}

func testPutThenGet(t *testing.T, newCache Factory) {
	c := newCache(t, 1024)
	ctx := context.Background()

	want := []byte("chunk-zero")
	require.NoError(t, c.Put(ctx, k(0), want))

	got, ok := c.Get(ctx, k(0))
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.True(t, c.Contains(ctx, k(0)))

	want[0] = 'X'
	got, _ = c.Get(ctx, k(0))
	assert.Equal(t, byte('c'), got[0], "cache must not alias the caller's buffer")
}

func testPutIdempotent(t *testing.T, newCache Factory) {
	c := newCache(t, 1024)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, k(1), payload(1, 100)))
	require.NoError(t, c.Put(ctx, k(1), payload(1, 100)))

	s := c.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, int64(100), s.Bytes)
}

// testCapacityLRU inserts 4 entries of 100 bytes into a 300 byte cache after
// touching the oldest, and expects the second-oldest to be the victim.
func testCapacityLRU(t *testing.T, newCache Factory) {
	c := newCache(t, 300)
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		require.NoError(t, c.Put(ctx, k(i), payload(i, 100)))
	}

	_, ok := c.Get(ctx, k(0))
	require.True(t, ok)

	require.NoError(t, c.Put(ctx, k(3), payload(3, 100)))

	s := c.Stats()
	assert.LessOrEqual(t, s.Bytes, int64(300))
	assert.Equal(t, 3, s.Entries)
	assert.Equal(t, uint64(1), s.Evictions)

	_, ok = c.Get(ctx, k(1))
	assert.False(t, ok, "least recently used entry should be evicted")

	for _, i := range []int64{0, 2, 3} {
		got, ok := c.Get(ctx, k(i))
		require.True(t, ok, "entry %d", i)
		assert.Equal(t, payload(i, 100), got)
	}

	// Overfill well past capacity.
	for i := int64(10); i < 30; i++ {
		require.NoError(t, c.Put(ctx, k(i), payload(i, 70)))
	}
	assert.LessOrEqual(t, c.Stats().Bytes, int64(300))
}

func testOversized(t *testing.T, newCache Factory) {
	c := newCache(t, 100)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, k(0), payload(0, 50)))
	err := c.Put(ctx, k(1), payload(1, 101))
	assert.ErrorIs(t, err, cache.ErrTooLarge)

	_, ok := c.Get(ctx, k(0))
	assert.True(t, ok, "rejected put must not evict")
}

func testPurge(t *testing.T, newCache Factory) {
	c := newCache(t, 1024)
	ctx := context.Background()

	for i := int64(0); i < 4; i++ {
		require.NoError(t, c.Put(ctx, k(i), payload(i, 10)))
	}
	require.NoError(t, c.Purge(ctx))

	for i := int64(0); i < 4; i++ {
		_, ok := c.Get(ctx, k(i))
		assert.False(t, ok)
	}
	s := c.Stats()
	assert.Zero(t, s.Entries)
	assert.Zero(t, s.Bytes)

	require.NoError(t, c.Put(ctx, k(9), payload(9, 10)))
	_, ok := c.Get(ctx, k(9))
	assert.True(t, ok)
}

func testConcurrent(t *testing.T, newCache Factory) {
	const capacity = 64 * 200
	c := newCache(t, capacity)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := int64(0); i < 100; i++ {
				idx := (i + int64(g)*13) % 120
				want := payload(idx, 200)
				if err := c.Put(ctx, k(idx), want); err != nil {
					t.Errorf("put %d: %v", idx, err)
					return
				}
				if got, ok := c.Get(ctx, k(idx)); ok && !bytes.Equal(got, want) {
					t.Errorf("chunk %d corrupted", idx)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Bytes, int64(capacity))
}

func testStats(t *testing.T, newCache Factory) {
	c := newCache(t, 1000)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, k(0), payload(0, 10)))
	c.Get(ctx, k(0))
	c.Get(ctx, k(0))
	c.Get(ctx, k(5))

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, int64(1000), s.Capacity)
	assert.NotEmpty(t, s.Type)
	assert.NoError(t, c.Healthcheck(ctx), fmt.Sprintf("%s healthcheck", s.Type))
}
