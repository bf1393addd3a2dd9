// Package detect triggers master list recompilation from the two paths that
// bypass the propagation engine: the periodic selection-audit poll and the
// push notification sent when a user's file selection changes.
//
// Neither path deduplicates across rapid repeated triggers; redundant
// compiles are harmless because compilation is a deterministic full
// overwrite of the artifact.
package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/inboxops/mailtriage/internal/store"
)

// Compiler regenerates one user's master list.
type Compiler interface {
	CompileAndStore(ctx context.Context, userEmail string) error
}

// Poller periodically scans the selection audit table and recompiles every
// user whose selection changed since the previous tick.
//
// The watermark is process-local: it resets to "now" on every start, so
// changes during downtime are only picked up if re-triggered via the push
// path.
type Poller struct {
	store    store.Store
	compiler Compiler
	interval time.Duration

	lastCheckedAt time.Time
}

// NewPoller creates a poller with the given tick interval.
func NewPoller(st store.Store, c Compiler, interval time.Duration) *Poller {
	return &Poller{store: st, compiler: c, interval: interval}
}

// Run polls until the context is cancelled. Query and compile failures are
// logged and the poller proceeds to its next tick; the watermark advances
// regardless of outcome.
func (p *Poller) Run(ctx context.Context) {
	p.lastCheckedAt = time.Now().UTC()
	slog.Info("selection audit poller started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("selection audit poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick performs one poll cycle.
func (p *Poller) tick(ctx context.Context) {
	since := p.lastCheckedAt
	p.lastCheckedAt = time.Now().UTC()

	changes, err := p.store.SelectionChangesSince(ctx, since)
	if err != nil {
		slog.Error("selection audit query failed", "error", err)
		return
	}
	if len(changes) == 0 {
		slog.Debug("no selection changes detected", "since", since)
		return
	}

	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		seen[c.UserID] = struct{}{}
	}
	slog.Info("selection changes detected", "users", len(seen), "since", since)

	for userID := range seen {
		email, err := p.store.EmailByUserID(ctx, userID)
		if err != nil {
			slog.Error("resolve changed user failed", "user_id", userID, "error", err)
			continue
		}
		if err := p.compiler.CompileAndStore(ctx, email); err != nil {
			slog.Error("master list compile failed", "user", email, "error", err)
			continue
		}
		slog.Info("master list updated", "user", email)
	}
}
