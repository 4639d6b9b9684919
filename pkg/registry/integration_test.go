//go:build integration
// +build integration

package registry

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenrollup/snapshotter/pkg/postgres"
	"github.com/zenrollup/snapshotter/pkg/types"
	"github.com/zenrollup/snapshotter/pkg/utils"
)

const testTableName = "snapshots_integration_test"

var testPool *pgxpool.Pool

func loadTestEnv() error {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return nil
	}
	dir := filepath.Dir(currentFile)
	return godotenv.Load(filepath.Join(dir, ".env.test"))
}

// TestMain sets up the Postgres pool for all integration tests.
// Integration tests require a running Postgres instance.
func TestMain(m *testing.M) {
	ctx := context.Background()

	if err := loadTestEnv(); err != nil {
		log.Printf("integration: could not load .env.test file: %v (using defaults)", err)
	}

	sugar, err := utils.NewSugaredLogger(true)
	if err != nil {
		log.Fatalf("integration: failed to create logger: %v", err)
	}

	pool, err := postgres.Connect(ctx, postgres.Load(), sugar)
	if err != nil {
		log.Fatalf("integration: failed to connect to postgres: %v", err)
	}
	testPool = pool

	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+testTableName); err != nil {
		log.Fatalf("integration: failed to reset test table: %v", err)
	}

	code := m.Run()

	pool.Close()
	os.Exit(code)
}

func newTestRegistry(t *testing.T) *PostgresRegistry {
	t.Helper()
	r, err := NewPostgres(testPool, testTableName)
	require.NoError(t, err)
	require.NoError(t, r.Initialize(context.Background()))
	return r
}

func TestPostgresRegistry_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	md := &types.SnapshotMetadata{
		L1BatchNumber:   42,
		MiniblockNumber: 999,
		Files: []string{
			"snapshots/l1_batch_42/storage_logs_chunk_0000.json.gz",
			"snapshots/l1_batch_42/storage_logs_chunk_0001.json.gz",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, r.Insert(ctx, md))

	got, err := r.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, md.L1BatchNumber, got.L1BatchNumber)
	assert.Equal(t, md.MiniblockNumber, got.MiniblockNumber)
	assert.Equal(t, md.Files, got.Files)
	assert.WithinDuration(t, md.CreatedAt, got.CreatedAt, time.Millisecond)

	// Second insert for the same batch collides and changes nothing.
	dup := *md
	dup.Files = []string{"other"}
	assert.ErrorIs(t, r.Insert(ctx, &dup), types.ErrAlreadyExists)

	got, err = r.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, md.Files, got.Files)

	_, err = r.Get(ctx, 41)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, r.Insert(ctx, &types.SnapshotMetadata{
		L1BatchNumber:   44,
		MiniblockNumber: 1044,
		Files:           []string{"snapshots/l1_batch_44/storage_logs_chunk_0000.json.gz"},
		CreatedAt:       time.Now().UTC(),
	}))

	summaries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, uint64(44), summaries[0].L1BatchNumber)
	assert.Equal(t, uint64(42), summaries[1].L1BatchNumber)
}
