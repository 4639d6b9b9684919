package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenrollup/snapshotter/pkg/registry"
	"github.com/zenrollup/snapshotter/pkg/types"
)

func newTestServer(t *testing.T, reg registry.Registry) *httptest.Server {
	t.Helper()
	s, err := NewServer(reg, Config{ListenAddr: ":0"}, zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func seedRegistry(t *testing.T, reg registry.Registry, batches ...uint64) {
	t.Helper()
	for _, n := range batches {
		require.NoError(t, reg.Insert(context.Background(), &types.SnapshotMetadata{
			L1BatchNumber:   n,
			MiniblockNumber: n * 10,
			Files:           []string{"chunk-0"},
			CreatedAt:       time.Now().UTC(),
		}))
	}
}

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(registry.NewMemory(), Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidLogger)

	_, err = NewServer(nil, Config{}, zap.NewNop().Sugar(), nil)
	assert.ErrorIs(t, err, ErrInvalidRegistry)
}

func TestListSnapshots(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemory()
	seedRegistry(t, reg, 3, 7, 5)
	ts := newTestServer(t, reg)

	resp, err := http.Get(ts.URL + "/snapshots")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Snapshots []struct {
			L1BatchNumber uint64 `json:"l1BatchNumber"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Snapshots, 3)
	// Newest batch first.
	assert.Equal(t, uint64(7), body.Snapshots[0].L1BatchNumber)
	assert.Equal(t, uint64(5), body.Snapshots[1].L1BatchNumber)
	assert.Equal(t, uint64(3), body.Snapshots[2].L1BatchNumber)
}

func TestListSnapshots_Empty(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, registry.NewMemory())

	resp, err := http.Get(ts.URL + "/snapshots")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// Empty list, not null.
	assert.JSONEq(t, `[]`, string(body["snapshots"]))
}

func TestGetSnapshot(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemory()
	require.NoError(t, reg.Insert(context.Background(), &types.SnapshotMetadata{
		L1BatchNumber:   42,
		MiniblockNumber: 999,
		Files:           []string{"chunk-0", "chunk-1"},
		CreatedAt:       time.Now().UTC(),
	}))
	ts := newTestServer(t, reg)

	resp, err := http.Get(ts.URL + "/snapshots/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		L1BatchNumber    uint64   `json:"l1BatchNumber"`
		MiniblockNumber  uint64   `json:"miniblockNumber"`
		StorageLogsFiles []string `json:"storageLogsFiles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint64(42), body.L1BatchNumber)
	assert.Equal(t, uint64(999), body.MiniblockNumber)
	assert.Equal(t, []string{"chunk-0", "chunk-1"}, body.StorageLogsFiles)
}

func TestGetSnapshot_NotFound(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, registry.NewMemory())

	resp, err := http.Get(ts.URL + "/snapshots/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Error)
}

func TestGetSnapshot_BadBatchNumber(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, registry.NewMemory())

	for _, raw := range []string{"abc", "-1", "1.5", "99999999999999999999999999"} {
		resp, err := http.Get(ts.URL + "/snapshots/" + raw)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "batch number %q", raw)
	}
}

type failingRegistry struct{}

func (failingRegistry) Initialize(context.Context) error { return nil }

func (failingRegistry) Insert(context.Context, *types.SnapshotMetadata) error {
	return errors.New("not implemented")
}

func (failingRegistry) List(context.Context) ([]types.SnapshotSummary, error) {
	return nil, errors.New("connection refused")
}

func (failingRegistry) Get(context.Context, uint64) (*types.SnapshotMetadata, error) {
	return nil, errors.New("connection refused")
}

func TestRegistryFailure_Returns500(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, failingRegistry{})

	for _, path := range []string{"/snapshots", "/snapshots/42"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, "path %s", path)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, registry.NewMemory())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
