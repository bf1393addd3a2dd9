// Package engine applies pending unsubscribe and contact-change events to
// canonical recipient lists, cascades the mutations to renamed descendants,
// and triggers master list recompilation for affected users.
//
// Events are processed independently and at-least-once: a failure leaves the
// event row in place for the next run, and re-applying an already-applied
// event is a no-op because the matching rows are gone. The event row is
// deleted only as the final step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inboxops/mailtriage/internal/store"
	"github.com/inboxops/mailtriage/internal/tabular"
)

// Recompiler regenerates one user's master list from current selections.
type Recompiler interface {
	CompileAndStore(ctx context.Context, userEmail string) error
}

// Engine drains the pending event tables against the canonical lists.
type Engine struct {
	store      store.Store
	recompiler Recompiler
}

// New creates an engine over the given store and recompiler.
func New(st store.Store, rc Recompiler) *Engine {
	return &Engine{store: st, recompiler: rc}
}

// Run performs one full drain pass: all pending unsubscribes, then all
// pending contact changes. Per-event failures are logged and leave the event
// pending; they never abort the remaining events.
func (e *Engine) Run(ctx context.Context) error {
	unsubs, err := e.store.PendingUnsubscribes(ctx)
	if err != nil {
		return fmt.Errorf("list pending unsubscribes: %w", err)
	}
	for _, ev := range unsubs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processUnsubscribe(ctx, ev); err != nil {
			slog.Error("unsubscribe event failed, left pending",
				"event_id", ev.ID, "email", ev.Email, "error", err)
		}
	}

	changes, err := e.store.PendingContactChanges(ctx)
	if err != nil {
		return fmt.Errorf("list pending contact changes: %w", err)
	}
	for _, ev := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processContactChange(ctx, ev); err != nil {
			slog.Error("contact change event failed, left pending",
				"event_id", ev.ID, "old_email", ev.OldEmail, "error", err)
		}
	}

	return nil
}

// processUnsubscribe removes every row matching the event's email from each
// canonical list and its one-hop renamed descendants, then recompiles
// affected users and consumes the event. Users are recompiled even when a
// sibling file failed: their files are already mutated and persisted, and
// the retried event will not touch them again (the rows are gone).
func (e *Engine) processUnsubscribe(ctx context.Context, ev store.Unsubscribe) error {
	apply := func(doc *tabular.Document) (bool, error) {
		col, ok := doc.Header.Resolve(tabular.FieldEmail)
		if !ok {
			return false, tabular.ErrColumnNotFound
		}
		kept := doc.Rows[:0]
		for _, row := range doc.Rows {
			if row[col] != ev.Email {
				kept = append(kept, row)
			}
		}
		changed := len(kept) < len(doc.Rows)
		doc.Rows = kept
		return changed, nil
	}

	dirty, err := e.applyToCanonicalLists(ctx, apply)
	e.recompileUsers(ctx, dirty)
	if err != nil {
		return err
	}

	if err := e.store.DeleteUnsubscribe(ctx, ev.ID); err != nil {
		return err
	}
	return nil
}

// processContactChange rewrites the email and name of every row matching the
// event's old email. Files lacking a name column are skipped entirely for
// this event kind. A replace leaves the row count unchanged, so change
// detection is an explicit flag rather than a count comparison.
func (e *Engine) processContactChange(ctx context.Context, ev store.ContactChange) error {
	apply := func(doc *tabular.Document) (bool, error) {
		emailCol, ok := doc.Header.Resolve(tabular.FieldEmail)
		if !ok {
			return false, tabular.ErrColumnNotFound
		}
		nameCol, ok := doc.Header.Resolve(tabular.FieldName)
		if !ok {
			return false, tabular.ErrColumnNotFound
		}

		modified := false
		for _, row := range doc.Rows {
			if row[emailCol] == ev.OldEmail {
				row[emailCol] = ev.NewEmail
				row[nameCol] = ev.NewName
				modified = true
			}
		}
		return modified, nil
	}

	dirty, err := e.applyToCanonicalLists(ctx, apply)
	e.recompileUsers(ctx, dirty)
	if err != nil {
		return err
	}

	if err := e.store.DeleteContactChange(ctx, ev.ID); err != nil {
		return err
	}
	return nil
}

// applyFunc mutates a decoded document in place and reports whether it
// changed. Returning tabular.ErrColumnNotFound means the file's schema
// cannot carry this event and the file is skipped with a warning.
type applyFunc func(doc *tabular.Document) (bool, error)

// applyToCanonicalLists runs apply over every canonical list file of the
// administrative account. When a canonical file changes, the same mutation
// is applied independently to each of its renamed descendants (their own
// header resolution, since renamed files may have drifted schema), and all
// selecting users are marked dirty.
//
// Per-file failures are logged and do not block sibling files, but any
// failure is reported so the caller leaves the event pending for retry. The
// dirty set is valid alongside a non-nil error and must still be recompiled.
func (e *Engine) applyToCanonicalLists(ctx context.Context, apply applyFunc) (map[string]struct{}, error) {
	adminID, err := e.store.AdminUserID(ctx)
	if err != nil {
		return nil, err
	}

	files, err := e.store.CanonicalListFiles(ctx, adminID)
	if err != nil {
		return nil, err
	}

	dirty := make(map[string]struct{})
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, f := range files {
		changed, err := e.applyToFile(ctx, f, apply, dirty)
		if err != nil {
			slog.Error("canonical list mutation failed", "file_id", f.ID, "error", err)
			fail(err)
			continue
		}
		if !changed {
			continue
		}

		descendants, err := e.store.RenameDescendants(ctx, f.ID)
		if err != nil {
			slog.Error("rename descendants lookup failed", "file_id", f.ID, "error", err)
			fail(err)
			continue
		}
		for _, d := range descendants {
			if _, err := e.applyToFile(ctx, d, apply, dirty); err != nil {
				slog.Error("renamed list mutation failed",
					"file_id", d.ID, "original_file_id", f.ID, "error", err)
				fail(err)
			}
		}
	}

	return dirty, firstErr
}

// applyToFile decodes one list file, applies the mutation, and persists the
// result as a full overwrite when it changed, marking selecting users dirty.
// A schema that cannot carry the event skips the file without error.
func (e *Engine) applyToFile(ctx context.Context, f store.ListFile, apply applyFunc, dirty map[string]struct{}) (bool, error) {
	doc, err := e.store.ReadRows(f)
	if err != nil {
		return false, err
	}

	changed, err := apply(doc)
	if errors.Is(err, tabular.ErrColumnNotFound) {
		slog.Warn("list file lacks required column, skipping", "file_id", f.ID, "error", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if err := e.store.WriteRows(ctx, f.ID, doc); err != nil {
		return false, err
	}

	users, err := e.store.UsersSelecting(ctx, f.ID)
	if err != nil {
		return true, err
	}
	for _, u := range users {
		dirty[u] = struct{}{}
	}
	return true, nil
}

// recompileUsers regenerates master lists for users whose selections touch a
// mutated file. Recompile failures are logged but do not keep the event
// pending: the compile is deterministic over current state and the change
// detectors retry it on their next cycle.
func (e *Engine) recompileUsers(ctx context.Context, dirty map[string]struct{}) {
	for userID := range dirty {
		email, err := e.store.EmailByUserID(ctx, userID)
		if err != nil {
			slog.Error("resolve dirty user failed", "user_id", userID, "error", err)
			continue
		}
		if err := e.recompiler.CompileAndStore(ctx, email); err != nil {
			slog.Error("master list recompile failed", "user", email, "error", err)
			continue
		}
		slog.Debug("master list recompiled", "user", email)
	}
}
