package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zenrollup/snapshotter/pkg/types"
)

// MemoryRegistry is an in-memory Registry for tests and local development.
// It enforces the same contract as the Postgres registry, including the
// unique-key insert.
type MemoryRegistry struct {
	mu        sync.RWMutex
	snapshots map[uint64]types.SnapshotMetadata
}

func NewMemory() *MemoryRegistry {
	return &MemoryRegistry{snapshots: make(map[uint64]types.SnapshotMetadata)}
}

func (r *MemoryRegistry) Initialize(ctx context.Context) error {
	return nil
}

func (r *MemoryRegistry) Insert(ctx context.Context, metadata *types.SnapshotMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.snapshots[metadata.L1BatchNumber]; exists {
		return fmt.Errorf("l1 batch %d: %w", metadata.L1BatchNumber, types.ErrAlreadyExists)
	}
	r.snapshots[metadata.L1BatchNumber] = *metadata
	return nil
}

func (r *MemoryRegistry) List(ctx context.Context) ([]types.SnapshotSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]types.SnapshotSummary, 0, len(r.snapshots))
	for n := range r.snapshots {
		summaries = append(summaries, types.SnapshotSummary{L1BatchNumber: n})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].L1BatchNumber > summaries[j].L1BatchNumber
	})
	return summaries, nil
}

func (r *MemoryRegistry) Get(ctx context.Context, l1BatchNumber uint64) (*types.SnapshotMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata, exists := r.snapshots[l1BatchNumber]
	if !exists {
		return nil, fmt.Errorf("l1 batch %d: %w", l1BatchNumber, types.ErrNotFound)
	}
	return &metadata, nil
}
