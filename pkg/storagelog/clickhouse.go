package storagelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ava-labs/libevm/common"

	"github.com/zenrollup/snapshotter/pkg/clickhouse"
	"github.com/zenrollup/snapshotter/pkg/types"
)

// ClickHouseSource reads the storage log from ClickHouse.
//
// Expected tables:
//
//	storage_logs(address String, key String, value String,
//	             l1_batch_number UInt64, miniblock_number UInt64)
//	l1_batches(number UInt64, is_sealed UInt8, last_miniblock_number UInt64)
//
// Point-in-time reads use argMax over miniblock_number, so later writes
// already present in the live log never leak into an older checkpoint.
type ClickHouseSource struct {
	client           clickhouse.Client
	logsTableName    string
	batchesTableName string
}

var (
	ErrInvalidClient    = errors.New("invalid clickhouse client: must not be nil")
	ErrInvalidTableName = errors.New("invalid table name: must not be empty")
)

// NewClickHouseSource creates a storage log source over the given tables.
func NewClickHouseSource(client clickhouse.Client, logsTableName, batchesTableName string) (*ClickHouseSource, error) {
	if client == nil {
		return nil, ErrInvalidClient
	}
	if logsTableName == "" || batchesTableName == "" {
		return nil, ErrInvalidTableName
	}
	return &ClickHouseSource{
		client:           client,
		logsTableName:    logsTableName,
		batchesTableName: batchesTableName,
	}, nil
}

func (s *ClickHouseSource) LatestSealedBatch(ctx context.Context) (*types.SnapshotCheckpoint, bool, error) {
	query := fmt.Sprintf(
		"SELECT number, last_miniblock_number FROM %s WHERE is_sealed = 1 ORDER BY number DESC LIMIT 1",
		s.batchesTableName,
	)

	var batch, miniblock uint64
	err := s.client.Conn().QueryRow(ctx, query).Scan(&batch, &miniblock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read latest sealed batch: %w", err)
	}
	return &types.SnapshotCheckpoint{L1BatchNumber: batch, MiniblockNumber: miniblock}, true, nil
}

func (s *ClickHouseSource) CountDistinctKeys(ctx context.Context, miniblockNumber uint64) (uint64, error) {
	query := fmt.Sprintf(
		"SELECT uniqExact((address, key)) FROM %s WHERE miniblock_number <= ?",
		s.logsTableName,
	)

	var count uint64
	err := s.client.Conn().QueryRow(ctx, query, miniblockNumber).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct storage keys: %w", err)
	}
	return count, nil
}

func (s *ClickHouseSource) ReadChunk(ctx context.Context, miniblockNumber uint64, chunkIndex, totalChunks int) ([]types.StorageLogEntry, error) {
	if totalChunks <= 0 || chunkIndex < 0 || chunkIndex >= totalChunks {
		return nil, fmt.Errorf("invalid chunk selector %d/%d", chunkIndex, totalChunks)
	}

	// The hash partition predicate depends only on the grouping keys, so it
	// lives in WHERE and each chunk scans its own slice of the key space.
	query := fmt.Sprintf(`
		SELECT
			address,
			key,
			argMax(value, miniblock_number) AS value,
			argMax(l1_batch_number, miniblock_number) AS last_l1_batch
		FROM %s
		WHERE miniblock_number <= ? AND cityHash64(address, key) %% ? = ?
		GROUP BY address, key
		ORDER BY address, key`,
		s.logsTableName,
	)

	rows, err := s.client.Conn().Query(ctx, query, miniblockNumber, uint64(totalChunks), uint64(chunkIndex))
	if err != nil {
		return nil, fmt.Errorf("failed to query storage log chunk %d/%d: %w", chunkIndex, totalChunks, err)
	}
	defer rows.Close()

	var entries []types.StorageLogEntry
	for rows.Next() {
		var (
			address   string
			key       string
			value     string
			lastBatch uint64
		)
		if err := rows.Scan(&address, &key, &value, &lastBatch); err != nil {
			return nil, fmt.Errorf("failed to scan storage log row: %w", err)
		}
		entries = append(entries, types.StorageLogEntry{
			AccountAddress:      common.BytesToAddress([]byte(address)),
			Key:                 common.BytesToHash([]byte(key)),
			Value:               common.BytesToHash([]byte(value)),
			LastModifiedL1Batch: lastBatch,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate storage log rows: %w", err)
	}
	return entries, nil
}
