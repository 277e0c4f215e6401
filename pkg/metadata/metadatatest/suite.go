// Package metadatatest holds behaviour tests shared by metadata.Store
// implementations.
package metadatatest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/relaystream/pkg/metadata"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) metadata.Store

// RunConformanceSuite exercises a store implementation.
func RunConformanceSuite(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateLocation", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("Invalid", func(t *testing.T) { testInvalid(t, newStore(t)) })
	t.Run("FindByFileName", func(t *testing.T) { testFindByFileName(t, newStore(t)) })
	t.Run("ListOrdered", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("Healthcheck", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Healthcheck(context.Background()))
	})
}

func record(name string, cid, iid int64) *metadata.FileRecord {
	return &metadata.FileRecord{FileName: name, ContainerID: cid, ItemID: iid, Size: 1234}
}

func testCreateAndGet(t *testing.T, s metadata.Store) {
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, record("Movie.2024.mkv", -1001, 7))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Movie.2024.mkv", got.FileName)
	assert.Equal(t, int64(-1001), got.ContainerID)
	assert.Equal(t, int64(7), got.ItemID)
	assert.Equal(t, int64(1234), got.Size)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, metadata.ErrRecordNotFound)
}

func testDuplicate(t *testing.T, s metadata.Store) {
	ctx := context.Background()

	_, err := s.CreateRecord(ctx, record("a.mkv", -1, 1))
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, record("b.mkv", -1, 1))
	assert.ErrorIs(t, err, metadata.ErrDuplicateRecord)

	_, err = s.CreateRecord(ctx, record("a.mkv", -1, 2))
	assert.NoError(t, err, "names may repeat")
}

func testInvalid(t *testing.T, s metadata.Store) {
	ctx := context.Background()

	_, err := s.CreateRecord(ctx, record("  ", -1, 1))
	assert.ErrorIs(t, err, metadata.ErrInvalidRecord)
	_, err = s.CreateRecord(ctx, record("x.mkv", -1, 0))
	assert.ErrorIs(t, err, metadata.ErrInvalidRecord)
}

func testFindByFileName(t *testing.T, s metadata.Store) {
	ctx := context.Background()

	first := record("Show.S01E01.srt", -5, 10)
	first.CreatedAt = time.Now().Add(-time.Hour)
	_, err := s.CreateRecord(ctx, first)
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, record("Show.S01E01.srt", -5, 11))
	require.NoError(t, err)

	got, err := s.FindByFileName(ctx, "Show.S01E01.srt")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.ItemID, "oldest record wins")

	_, err = s.FindByFileName(ctx, "show.s01e01.srt")
	assert.ErrorIs(t, err, metadata.ErrRecordNotFound, "match is exact")
}

func testList(t *testing.T, s metadata.Store) {
	ctx := context.Background()

	recs, err := s.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	base := time.Now().Add(-time.Minute)
	for i, name := range []string{"c.mkv", "a.mkv", "b.mkv"} {
		r := record(name, -9, int64(i+1))
		r.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := s.CreateRecord(ctx, r)
		require.NoError(t, err)
	}

	recs, err = s.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"c.mkv", "a.mkv", "b.mkv"},
		[]string{recs[0].FileName, recs[1].FileName, recs[2].FileName})
}

func testDelete(t *testing.T, s metadata.Store) {
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, record("gone.mkv", -3, 3))
	require.NoError(t, err)

	require.NoError(t, s.DeleteRecord(ctx, id))
	assert.ErrorIs(t, s.DeleteRecord(ctx, id), metadata.ErrRecordNotFound)

	_, err = s.GetRecord(ctx, id)
	assert.ErrorIs(t, err, metadata.ErrRecordNotFound)

	_, err = s.CreateRecord(ctx, record("again.mkv", -3, 3))
	assert.NoError(t, err, "location is free after delete")
}
