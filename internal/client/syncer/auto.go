package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Start runs a sync pass every interval while gate reports true. It returns
// immediately; the loop stops when ctx is done.
func (e *Engine) Start(ctx context.Context, interval time.Duration, gate func() bool) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if gate != nil && !gate() {
					continue
				}
				if err := e.RunFullSync(ctx, nil); err != nil {
					e.log.Error("background sync failed", zap.Error(err))
				}
			}
		}
	}()
}
