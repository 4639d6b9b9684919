package types

import (
	"time"

	"github.com/ava-labs/libevm/common"
)

// StorageLogEntry is the authoritative value of one storage slot as of a
// snapshot checkpoint. Entries are immutable once included in a chunk.
type StorageLogEntry struct {
	AccountAddress common.Address
	Key            common.Hash
	Value          common.Hash
	// LastModifiedL1Batch is the L1 batch in which this value was last
	// written. Always <= the snapshot's L1 batch number.
	LastModifiedL1Batch uint64
}

// SnapshotCheckpoint is the immutable point-in-time boundary a snapshot
// represents. MiniblockNumber is the last miniblock belonging to
// L1BatchNumber; every entry in the snapshot reflects state as of exactly
// that miniblock.
type SnapshotCheckpoint struct {
	L1BatchNumber   uint64
	MiniblockNumber uint64
}

// SnapshotChunk is one partition of a snapshot's key set. Entries need not be
// ordered across chunks; the union of all chunks for one snapshot covers the
// complete key set with no duplicate (account, key) pairs.
type SnapshotChunk struct {
	Index          int
	Entries        []StorageLogEntry
	StoredLocation string
}

// SnapshotMetadata is one registry row. Created only after every referenced
// chunk is durable, and never updated afterwards.
type SnapshotMetadata struct {
	L1BatchNumber   uint64
	MiniblockNumber uint64
	Files           []string
	CreatedAt       time.Time
}

// SnapshotSummary is the listing projection of a registry row.
type SnapshotSummary struct {
	L1BatchNumber uint64
}
