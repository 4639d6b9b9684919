// Package storagelog reads the execution node's append-only storage log: the
// record of every (account, key) -> value write, tagged with the L1 batch and
// miniblock it occurred in. The snapshot creator is a pure reader; nothing in
// this package mutates the log.
package storagelog

import (
	"context"

	"github.com/zenrollup/snapshotter/pkg/types"
)

// Source provides point-in-time reads over the storage log.
//
// ReadChunk partitions the key space by hash into totalChunks disjoint sets:
// the union of all chunk indexes at a fixed miniblock is exactly the set of
// distinct (account, key) pairs written up to that miniblock, each with the
// value it held at that miniblock, with no duplicates across chunks.
type Source interface {
	// LatestSealedBatch returns the newest sealed L1 batch and its last
	// miniblock. ok is false when the chain has no sealed batch yet.
	LatestSealedBatch(ctx context.Context) (checkpoint *types.SnapshotCheckpoint, ok bool, err error)

	// CountDistinctKeys returns the number of distinct (account, key) pairs
	// written up to and including the given miniblock.
	CountDistinctKeys(ctx context.Context, miniblockNumber uint64) (uint64, error)

	// ReadChunk returns chunk chunkIndex of totalChunks of the key space as
	// of the given miniblock. Entries are ordered by (account, key) within
	// the chunk.
	ReadChunk(ctx context.Context, miniblockNumber uint64, chunkIndex, totalChunks int) ([]types.StorageLogEntry, error)
}
