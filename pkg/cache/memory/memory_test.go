package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/cache/cachetest"
	"github.com/marmos91/relaystream/pkg/cache/memory"
	"github.com/marmos91/relaystream/pkg/chunk"
)

func TestConformance(t *testing.T) {
	cachetest.RunConformanceSuite(t, func(t *testing.T, capacity int64) cache.Cache {
		c := memory.New(capacity, nil)
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func TestClosedCacheMisses(t *testing.T) {
	ctx := context.Background()
	c := memory.New(100, nil)
	assert.NoError(t, c.Put(ctx, chunk.NewKey(1, 1, 0), []byte("x")))
	assert.NoError(t, c.Close())

	_, ok := c.Get(ctx, chunk.NewKey(1, 1, 0))
	assert.False(t, ok)
	assert.ErrorIs(t, c.Put(ctx, chunk.NewKey(1, 1, 1), []byte("y")), cache.ErrClosed)
	assert.ErrorIs(t, c.Healthcheck(ctx), cache.ErrClosed)
}
