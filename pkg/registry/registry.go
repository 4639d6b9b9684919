// Package registry is the durable catalog of completed snapshots: one row per
// L1 batch number, written exactly once, after every chunk the row references
// is already durable in the object store.
//
// The registry is the single source of truth for "does a snapshot exist".
// Readers consult it rather than probing the object store.
package registry

import (
	"context"

	"github.com/zenrollup/snapshotter/pkg/types"
)

// Registry is the snapshot catalog.
type Registry interface {
	// Initialize ensures the underlying storage is ready (creates tables,
	// schemas, etc.). Idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Insert atomically persists one metadata row. A collision on the L1
	// batch number returns types.ErrAlreadyExists and leaves the existing
	// row untouched.
	Insert(ctx context.Context, metadata *types.SnapshotMetadata) error

	// List returns summaries of all snapshots, newest batch first. The order
	// is stable across calls for a fixed underlying state.
	List(ctx context.Context) ([]types.SnapshotSummary, error)

	// Get returns the full metadata for one snapshot, or types.ErrNotFound.
	Get(ctx context.Context, l1BatchNumber uint64) (*types.SnapshotMetadata, error)
}
