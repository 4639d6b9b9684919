package creator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenrollup/snapshotter/pkg/registry"
)

func TestRunPeriodically_StopsOnCancel(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	src := &mockSource{}
	src.On("LatestSealedBatch", mock.Anything).Run(func(args mock.Arguments) {
		runs.Add(1)
	}).Return(nil, false, nil)

	c, err := New(src, newFakeStore(), registry.NewMemory(), nil, testConfig(), zap.NewNop().Sugar(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunPeriodically(ctx, c, 5*time.Millisecond, time.Second, zap.NewNop().Sugar())
	}()

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestRunPeriodically_KeepsGoingAfterFailedRun(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	src := &mockSource{}
	src.On("LatestSealedBatch", mock.Anything).Run(func(args mock.Arguments) {
		runs.Add(1)
	}).Return(nil, false, errors.New("source unavailable"))

	c, err := New(src, newFakeStore(), registry.NewMemory(), nil, testConfig(), zap.NewNop().Sugar(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- RunPeriodically(ctx, c, 5*time.Millisecond, time.Second, zap.NewNop().Sugar())
	}()

	// Failures do not terminate the loop.
	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
