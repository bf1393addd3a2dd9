// Package store provides access to list files, rename lineage, per-user file
// selections, and the pending event tables that drive change propagation.
//
// The adapter exposes per-file atomic reads and full-overwrite writes; no
// transactional wrapping spans multiple files. Callers that mutate several
// related files rely on re-runnable events rather than multi-file atomicity.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inboxops/mailtriage/internal/tabular"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// WriteError wraps a failed list-file overwrite. Callers must not assume
// partial success: the file either holds the previous blob or the new one.
type WriteError struct {
	FileID string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write list file %s: %v", e.FileID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ListFile is a stored recipient list: a hex-wrapped delimited blob owned by
// a single account. Canonical lists belong to the administrative account;
// the same table also holds per-user working copies.
type ListFile struct {
	ID        string
	OwnerID   string
	FileData  string
	CreatedAt time.Time
}

// Unsubscribe is a pending fact: remove this email from every canonical list
// and its renamed descendants, then delete the row.
type Unsubscribe struct {
	ID    string
	Email string
}

// ContactChange is a pending fact: rewrite this contact's email and name
// wherever the old email appears, then delete the row.
type ContactChange struct {
	ID       string
	OldEmail string
	NewEmail string
	NewName  string
}

// SelectionChange is an audit row recording that a user's file selection
// changed at a point in time. Feeds the recompilation poller.
type SelectionChange struct {
	UserID    string
	ChangedAt time.Time
}

// Store is the access contract shared by the propagation engine, the master
// list compiler, and the change detectors.
type Store interface {
	// AdminUserID resolves the fixed administrative account that owns
	// canonical lists.
	AdminUserID(ctx context.Context) (string, error)
	UserIDByEmail(ctx context.Context, email string) (string, error)
	EmailByUserID(ctx context.Context, userID string) (string, error)

	CanonicalListFiles(ctx context.Context, ownerID string) ([]ListFile, error)
	ListFile(ctx context.Context, fileID string) (ListFile, error)
	// RenameDescendants returns the files one rename hop away from fileID.
	RenameDescendants(ctx context.Context, fileID string) ([]ListFile, error)
	UsersSelecting(ctx context.Context, fileID string) ([]string, error)
	SelectedFileIDs(ctx context.Context, userID string) ([]string, error)

	// ReadRows decodes a list file's blob through the tabular codec.
	ReadRows(f ListFile) (*tabular.Document, error)
	// WriteRows re-encodes and fully overwrites the file's blob.
	WriteRows(ctx context.Context, fileID string, doc *tabular.Document) error

	PendingUnsubscribes(ctx context.Context) ([]Unsubscribe, error)
	DeleteUnsubscribe(ctx context.Context, id string) error
	PendingContactChanges(ctx context.Context) ([]ContactChange, error)
	DeleteContactChange(ctx context.Context, id string) error

	// Producer side: called by the email processing pipeline.
	EnqueueUnsubscribe(ctx context.Context, email string) error
	EnqueueContactChange(ctx context.Context, oldEmail, newEmail, newName string) error

	// SelectionChangesSince returns selection audit rows at or after t.
	SelectionChangesSince(ctx context.Context, t time.Time) ([]SelectionChange, error)
}
