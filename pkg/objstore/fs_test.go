package objstore

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenrollup/snapshotter/pkg/types"
)

func newMemStore(t *testing.T) *FilesystemStore {
	t.Helper()
	s, err := NewFilesystemStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	return s
}

func TestNewFilesystemStore_EmptyRoot(t *testing.T) {
	t.Parallel()
	_, err := NewFilesystemStore(afero.NewMemMapFs(), "")
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestFilesystemStore_PutGet(t *testing.T) {
	t.Parallel()
	s := newMemStore(t)
	ctx := context.Background()

	key := ChunkKey(42, 0)
	require.NoError(t, s.Put(ctx, key, []byte("chunk-bytes")))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-bytes"), got)
}

func TestFilesystemStore_GetMissing(t *testing.T) {
	t.Parallel()
	s := newMemStore(t)

	_, err := s.Get(context.Background(), ChunkKey(42, 7))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFilesystemStore_Exists(t *testing.T) {
	t.Parallel()
	s := newMemStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, ChunkKey(42, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, ChunkKey(42, 0), []byte("x")))

	ok, err = s.Exists(ctx, ChunkKey(42, 0))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilesystemStore_PutOverwrites(t *testing.T) {
	t.Parallel()
	s := newMemStore(t)
	ctx := context.Background()

	key := ChunkKey(42, 1)
	require.NoError(t, s.Put(ctx, key, []byte("first")))
	require.NoError(t, s.Put(ctx, key, []byte("second")))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFilesystemStore_CanceledContext(t *testing.T) {
	t.Parallel()
	s := newMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Put(ctx, ChunkKey(1, 0), []byte("x")))
	_, err := s.Get(ctx, ChunkKey(1, 0))
	assert.Error(t, err)
}

func TestChunkKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "snapshots/l1_batch_42/storage_logs_chunk_0000.json.gz", ChunkKey(42, 0))
	assert.Equal(t, "snapshots/l1_batch_42/storage_logs_chunk_0013.json.gz", ChunkKey(42, 13))
	// same inputs always produce the same key
	assert.Equal(t, ChunkKey(7, 3), ChunkKey(7, 3))
}
