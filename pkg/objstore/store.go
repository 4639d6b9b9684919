// Package objstore is the durable blob store snapshot chunks are written to.
// Chunks are write-once: a stored object is never modified in place.
package objstore

import (
	"context"
	"fmt"
)

// Store is the minimal object store surface the snapshot engine consumes.
type Store interface {
	// Put durably stores data under key, creating any missing path
	// components. Put over an existing key replaces the object as a whole;
	// readers never observe a partial write.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the full object stored under key, or types.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// ChunkKey builds the deterministic object key for one chunk of a snapshot.
// The key is derivable from the checkpoint and chunk index alone, so a
// registry row's file list is sufficient to locate every chunk.
func ChunkKey(l1BatchNumber uint64, chunkIndex int) string {
	return fmt.Sprintf("snapshots/l1_batch_%d/storage_logs_chunk_%04d.json.gz", l1BatchNumber, chunkIndex)
}
