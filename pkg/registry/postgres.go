package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zenrollup/snapshotter/pkg/types"
)

// DB is the slice of pgxpool.Pool the registry needs. Satisfied by
// *pgxpool.Pool; unit tests substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRegistry stores snapshot metadata in a Postgres table with the L1
// batch number as primary key. The unique-key insert is the mutual-exclusion
// mechanism between concurrent creator runs for the same checkpoint.
type PostgresRegistry struct {
	db        DB
	tableName string
}

var (
	ErrInvalidDB        = errors.New("invalid db: must not be nil")
	ErrInvalidTableName = errors.New("invalid table name: must not be empty")
)

// NewPostgres creates a registry over the given table.
func NewPostgres(db DB, tableName string) (*PostgresRegistry, error) {
	if db == nil {
		return nil, ErrInvalidDB
	}
	if tableName == "" {
		return nil, ErrInvalidTableName
	}
	return &PostgresRegistry{db: db, tableName: tableName}, nil
}

func (r *PostgresRegistry) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		l1_batch_number  BIGINT PRIMARY KEY,
		miniblock_number BIGINT NOT NULL,
		files            TEXT[] NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL
	)`, r.tableName)
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize snapshots table: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Insert(ctx context.Context, metadata *types.SnapshotMetadata) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (l1_batch_number, miniblock_number, files, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (l1_batch_number) DO NOTHING`,
		r.tableName,
	)
	tag, err := r.db.Exec(ctx, query,
		int64(metadata.L1BatchNumber),
		int64(metadata.MiniblockNumber),
		metadata.Files,
		metadata.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("l1 batch %d: %w", metadata.L1BatchNumber, types.ErrAlreadyExists)
	}
	return nil
}

func (r *PostgresRegistry) List(ctx context.Context) ([]types.SnapshotSummary, error) {
	query := fmt.Sprintf(
		"SELECT l1_batch_number FROM %s ORDER BY l1_batch_number DESC",
		r.tableName,
	)

	var batchNumbers []int64
	if err := pgxscan.Select(ctx, r.db, &batchNumbers, query); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	summaries := make([]types.SnapshotSummary, 0, len(batchNumbers))
	for _, n := range batchNumbers {
		summaries = append(summaries, types.SnapshotSummary{L1BatchNumber: uint64(n)})
	}
	return summaries, nil
}

type snapshotRow struct {
	L1BatchNumber   int64     `db:"l1_batch_number"`
	MiniblockNumber int64     `db:"miniblock_number"`
	Files           []string  `db:"files"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r *PostgresRegistry) Get(ctx context.Context, l1BatchNumber uint64) (*types.SnapshotMetadata, error) {
	query := fmt.Sprintf(
		"SELECT l1_batch_number, miniblock_number, files, created_at FROM %s WHERE l1_batch_number = $1",
		r.tableName,
	)

	var row snapshotRow
	if err := pgxscan.Get(ctx, r.db, &row, query, int64(l1BatchNumber)); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("l1 batch %d: %w", l1BatchNumber, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot metadata: %w", err)
	}

	return &types.SnapshotMetadata{
		L1BatchNumber:   uint64(row.L1BatchNumber),
		MiniblockNumber: uint64(row.MiniblockNumber),
		Files:           row.Files,
		CreatedAt:       row.CreatedAt,
	}, nil
}
