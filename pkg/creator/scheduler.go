package creator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunPeriodically invokes the creator every interval until the context is
// cancelled, giving each run at most runTimeout.
//
// A failed run is logged and retried at the next tick: failures never leave a
// visible snapshot, so the safe response is simply to try again. Returns nil
// on context cancellation (graceful shutdown).
func RunPeriodically(
	ctx context.Context,
	c *Creator,
	interval time.Duration,
	runTimeout time.Duration,
	log *zap.SugaredLogger,
) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			metadata, err := c.CreateSnapshot(runCtx)
			cancel()

			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				log.Errorw("snapshot run failed, will retry next interval", "error", err)
				continue
			}
			if metadata != nil {
				log.Infow("scheduled snapshot run committed",
					"l1BatchNumber", metadata.L1BatchNumber)
			}
		}
	}
}
