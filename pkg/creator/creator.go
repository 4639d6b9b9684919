// Package creator produces snapshots: at the newest sealed L1 batch it
// materializes the full storage log into immutable chunk files and commits
// exactly one registry row referencing them.
//
// Ordering is the correctness mechanism: every chunk is durable in the object
// store before the registry row is inserted. A crash mid-run leaves orphaned
// chunk files and no visible snapshot, never a visible snapshot with missing
// chunks.
package creator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zenrollup/snapshotter/pkg/codec"
	"github.com/zenrollup/snapshotter/pkg/events"
	"github.com/zenrollup/snapshotter/pkg/metrics"
	"github.com/zenrollup/snapshotter/pkg/objstore"
	"github.com/zenrollup/snapshotter/pkg/registry"
	"github.com/zenrollup/snapshotter/pkg/storagelog"
	"github.com/zenrollup/snapshotter/pkg/types"
)

var (
	ErrInvalidLogger   = errors.New("invalid logger: must not be nil")
	ErrInvalidSource   = errors.New("invalid storage log source: must not be nil")
	ErrInvalidStore    = errors.New("invalid object store: must not be nil")
	ErrInvalidRegistry = errors.New("invalid registry: must not be nil")
)

// Creator orchestrates one snapshot per invocation.
type Creator struct {
	source    storagelog.Source
	store     objstore.Store
	registry  registry.Registry
	publisher events.Publisher // optional; nil disables commit events
	cfg       Config
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics // optional
}

// New creates a Creator. publisher and m may be nil.
func New(
	source storagelog.Source,
	store objstore.Store,
	reg registry.Registry,
	publisher events.Publisher,
	cfg Config,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) (*Creator, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if source == nil {
		return nil, ErrInvalidSource
	}
	if store == nil {
		return nil, ErrInvalidStore
	}
	if reg == nil {
		return nil, ErrInvalidRegistry
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Creator{
		source:    source,
		store:     store,
		registry:  reg,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		metrics:   m,
	}, nil
}

// CreateSnapshot runs one snapshot attempt.
//
// Returns (nil, nil) when there is nothing to do: no sealed batch exists yet,
// a snapshot for the newest sealed batch is already committed, or a
// concurrent run won the registry insert. Re-invocation against an already
// snapshotted checkpoint is therefore idempotent.
func (c *Creator) CreateSnapshot(ctx context.Context) (*types.SnapshotMetadata, error) {
	start := time.Now()
	metadata, err := c.createSnapshot(ctx)

	if c.metrics != nil {
		status := metrics.StatusNoop
		switch {
		case err != nil:
			status = metrics.StatusError
		case metadata != nil:
			status = metrics.StatusSuccess
		}
		c.metrics.RecordRun(status, time.Since(start).Seconds())
	}
	return metadata, err
}

func (c *Creator) createSnapshot(ctx context.Context) (*types.SnapshotMetadata, error) {
	checkpoint, ok, err := c.source.LatestSealedBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select checkpoint: %w", err)
	}
	if !ok {
		c.log.Info("no sealed l1 batch exists yet, nothing to snapshot")
		return nil, nil
	}

	if _, err := c.registry.Get(ctx, checkpoint.L1BatchNumber); err == nil {
		c.log.Infow("snapshot already exists for newest sealed batch",
			"l1BatchNumber", checkpoint.L1BatchNumber)
		return nil, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing snapshot: %w", err)
	}

	totalKeys, err := c.source.CountDistinctKeys(ctx, checkpoint.MiniblockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to count storage keys: %w", err)
	}
	chunkCount := c.chunkCount(totalKeys)

	c.log.Infow("creating snapshot",
		"l1BatchNumber", checkpoint.L1BatchNumber,
		"miniblockNumber", checkpoint.MiniblockNumber,
		"totalKeys", totalKeys,
		"chunks", chunkCount,
	)

	files, err := c.writeChunks(ctx, checkpoint, chunkCount)
	if err != nil {
		return nil, err
	}

	metadata := &types.SnapshotMetadata{
		L1BatchNumber:   checkpoint.L1BatchNumber,
		MiniblockNumber: checkpoint.MiniblockNumber,
		Files:           files,
		CreatedAt:       time.Now().UTC(),
	}

	// All chunks are durable; only now does the snapshot become visible.
	if err := c.registry.Insert(ctx, metadata); err != nil {
		if errors.Is(err, types.ErrAlreadyExists) {
			c.log.Infow("concurrent run already committed this snapshot, discarding ours",
				"l1BatchNumber", checkpoint.L1BatchNumber)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to commit snapshot metadata: %w", err)
	}

	if c.metrics != nil {
		c.metrics.SetLastSnapshotL1Batch(metadata.L1BatchNumber)
	}
	c.log.Infow("snapshot committed",
		"l1BatchNumber", metadata.L1BatchNumber,
		"chunks", len(metadata.Files),
	)

	c.publishCommitted(ctx, metadata)

	return metadata, nil
}

// chunkCount is ceil(totalKeys / ChunkMaxEntries), with at least one chunk so
// an empty key space still yields a decodable snapshot.
func (c *Creator) chunkCount(totalKeys uint64) int {
	count := (totalKeys + c.cfg.ChunkMaxEntries - 1) / c.cfg.ChunkMaxEntries
	if count == 0 {
		count = 1
	}
	return int(count)
}

// writeChunks fans chunk production out across bounded workers and joins on
// all of them. Any chunk exhausting its retries fails the whole run.
func (c *Creator) writeChunks(ctx context.Context, checkpoint *types.SnapshotCheckpoint, chunkCount int) ([]string, error) {
	files := make([]string, chunkCount)
	sem := semaphore.NewWeighted(c.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < chunkCount; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			// A sibling worker failed or the run was cancelled; the join
			// below reports the cause.
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			key, err := c.writeChunk(gctx, checkpoint, i, chunkCount)
			if err != nil {
				return err
			}
			files[i] = key
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot aborted, no metadata committed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Creator) writeChunk(ctx context.Context, checkpoint *types.SnapshotCheckpoint, index, total int) (string, error) {
	start := time.Now()

	entries, err := c.source.ReadChunk(ctx, checkpoint.MiniblockNumber, index, total)
	if err != nil {
		return "", fmt.Errorf("failed to read storage log chunk %d/%d: %w", index, total, err)
	}

	blob, err := codec.EncodeChunk(codec.Header{
		LastL1BatchNumber:   checkpoint.L1BatchNumber,
		LastMiniblockNumber: checkpoint.MiniblockNumber,
	}, entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode chunk %d: %w", index, err)
	}

	key := objstore.ChunkKey(checkpoint.L1BatchNumber, index)

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = c.cfg.ChunkRetryBackoff
	ebo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(ebo, c.cfg.ChunkMaxRetries), ctx)

	err = backoff.Retry(func() error {
		putErr := c.store.Put(ctx, key, blob)
		if putErr != nil {
			c.log.Warnw("chunk write failed", "key", key, "error", putErr)
			if c.metrics != nil {
				c.metrics.IncChunkWriteRetry()
			}
		}
		return putErr
	}, policy)
	if err != nil {
		return "", fmt.Errorf("failed to write chunk %d after bounded retries: %w", index, err)
	}

	if c.metrics != nil {
		c.metrics.RecordChunkWrite(time.Since(start).Seconds())
		c.metrics.AddEntriesSnapshotted(uint64(len(entries)))
	}
	c.log.Debugw("chunk written", "key", key, "entries", len(entries))
	return key, nil
}

// publishCommitted emits the advisory commit event. Publish failures are
// logged, never surfaced: the registry row is already the durable truth.
func (c *Creator) publishCommitted(ctx context.Context, metadata *types.SnapshotMetadata) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishSnapshotCommitted(ctx, metadata); err != nil {
		c.log.Warnw("failed to publish snapshot committed event",
			"l1BatchNumber", metadata.L1BatchNumber, "error", err)
	}
}
