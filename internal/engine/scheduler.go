package engine

// scheduler.go runs the propagation engine as a long-lived background job.
//
// The loop is context-aware for graceful shutdown. It logs progress and
// errors but never fails the application when an individual drain pass
// fails; failed events stay pending and are retried on the next pass.

import (
	"context"
	"log/slog"
	"time"
)

// StartScheduler runs a drain pass immediately, then every interval, until
// the context is cancelled.
func (e *Engine) StartScheduler(ctx context.Context, interval time.Duration) {
	slog.Info("propagation scheduler started", "interval", interval)

	e.runPass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("propagation scheduler stopped")
			return
		case <-ticker.C:
			e.runPass(ctx)
		}
	}
}

// runPass performs one drain cycle.
func (e *Engine) runPass(ctx context.Context) {
	start := time.Now()
	if err := e.Run(ctx); err != nil {
		slog.Error("propagation pass failed", "error", err)
		return
	}
	slog.Debug("propagation pass completed", "duration_ms", time.Since(start).Milliseconds())
}
