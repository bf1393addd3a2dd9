package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inboxops/mailtriage/internal/tabular"
)

// adminAccountName identifies the administrative account that owns canonical
// recipient lists.
const adminAccountName = "Admin"

// DB is the subset of pgx operations the store uses.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PGStore is the Postgres-backed Store implementation.
type PGStore struct {
	db DB
}

// NewPG creates a store over a pgx pool or transaction.
func NewPG(db DB) *PGStore {
	return &PGStore{db: db}
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) AdminUserID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM users WHERE name = $1`, adminAccountName,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("admin account: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query admin account: %w", err)
	}
	return id, nil
}

func (s *PGStore) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM users WHERE email = $1`, email,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query user by email: %w", err)
	}
	return id, nil
}

func (s *PGStore) EmailByUserID(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.db.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`, userID,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query user email: %w", err)
	}
	return email, nil
}

func (s *PGStore) CanonicalListFiles(ctx context.Context, ownerID string) ([]ListFile, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, file_data, created_at
		   FROM list_files
		  WHERE user_id = $1
		  ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query canonical list files: %w", err)
	}
	defer rows.Close()
	return scanListFiles(rows)
}

func (s *PGStore) ListFile(ctx context.Context, fileID string) (ListFile, error) {
	var f ListFile
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, file_data, created_at
		   FROM list_files
		  WHERE id = $1`, fileID,
	).Scan(&f.ID, &f.OwnerID, &f.FileData, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ListFile{}, fmt.Errorf("list file %s: %w", fileID, ErrNotFound)
	}
	if err != nil {
		return ListFile{}, fmt.Errorf("query list file: %w", err)
	}
	return f, nil
}

func (s *PGStore) RenameDescendants(ctx context.Context, fileID string) ([]ListFile, error) {
	rows, err := s.db.Query(ctx,
		`SELECT f.id, f.user_id, f.file_data, f.created_at
		   FROM rename_files r
		   JOIN list_files f ON f.id = r.new_file_id
		  WHERE r.original_file_id = $1`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query rename descendants: %w", err)
	}
	defer rows.Close()
	return scanListFiles(rows)
}

func (s *PGStore) UsersSelecting(ctx context.Context, fileID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id FROM company_recipient_lists WHERE file_id = $1`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query users selecting file: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (s *PGStore) SelectedFileIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT file_id FROM company_recipient_lists WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query selected files: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (s *PGStore) ReadRows(f ListFile) (*tabular.Document, error) {
	doc, err := tabular.Decode(f.FileData)
	if err != nil {
		return nil, fmt.Errorf("read list file %s: %w", f.ID, err)
	}
	return doc, nil
}

func (s *PGStore) WriteRows(ctx context.Context, fileID string, doc *tabular.Document) error {
	blob, err := doc.Encode()
	if err != nil {
		return &WriteError{FileID: fileID, Err: err}
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE list_files SET file_data = $1 WHERE id = $2`, blob, fileID)
	if err != nil {
		return &WriteError{FileID: fileID, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &WriteError{FileID: fileID, Err: ErrNotFound}
	}
	return nil
}

func (s *PGStore) PendingUnsubscribes(ctx context.Context) ([]Unsubscribe, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, email FROM unsubscribe_emails ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query pending unsubscribes: %w", err)
	}
	defer rows.Close()

	var out []Unsubscribe
	for rows.Next() {
		var u Unsubscribe
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, fmt.Errorf("scan unsubscribe: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PGStore) DeleteUnsubscribe(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM unsubscribe_emails WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete unsubscribe %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) PendingContactChanges(ctx context.Context) ([]ContactChange, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, old_email, new_email, new_name FROM contact_changes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query pending contact changes: %w", err)
	}
	defer rows.Close()

	var out []ContactChange
	for rows.Next() {
		var c ContactChange
		if err := rows.Scan(&c.ID, &c.OldEmail, &c.NewEmail, &c.NewName); err != nil {
			return nil, fmt.Errorf("scan contact change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) DeleteContactChange(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM contact_changes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete contact change %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) EnqueueUnsubscribe(ctx context.Context, email string) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO unsubscribe_emails (id, email) VALUES ($1, $2)`,
		uuid.New().String(), email); err != nil {
		return fmt.Errorf("enqueue unsubscribe: %w", err)
	}
	return nil
}

func (s *PGStore) EnqueueContactChange(ctx context.Context, oldEmail, newEmail, newName string) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO contact_changes (id, old_email, new_email, new_name)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), oldEmail, newEmail, newName); err != nil {
		return fmt.Errorf("enqueue contact change: %w", err)
	}
	return nil
}

func (s *PGStore) SelectionChangesSince(ctx context.Context, t time.Time) ([]SelectionChange, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, changed_at
		   FROM company_recipient_lists_audit
		  WHERE changed_at >= $1`, t)
	if err != nil {
		return nil, fmt.Errorf("query selection audit: %w", err)
	}
	defer rows.Close()

	var out []SelectionChange
	for rows.Next() {
		var c SelectionChange
		if err := rows.Scan(&c.UserID, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan selection audit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanListFiles(rows pgx.Rows) ([]ListFile, error) {
	var out []ListFile
	for rows.Next() {
		var f ListFile
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.FileData, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan list file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
