// Package compiler derives per-user master lists from the recipient list
// files each user has selected.
//
// A master list is a pure function of the user's selected files at the
// moment of compilation: it is fully regenerated on every compile and
// deleted when the selection is empty. Duplicate or concurrent triggers are
// therefore harmless; the last writer produces a valid derivation.
package compiler

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/inboxops/mailtriage/internal/storage"
	"github.com/inboxops/mailtriage/internal/store"
	"github.com/inboxops/mailtriage/internal/tabular"
)

// ErrPublish indicates the compiled artifact could not be uploaded. Callers
// retry on their next trigger cycle rather than crashing.
var ErrPublish = errors.New("publish master list failed")

// ArtifactKey returns the object key for a user's master list.
func ArtifactKey(userEmail string) string {
	return userEmail + "/master_list.csv"
}

// Compiler builds and publishes master list artifacts.
type Compiler struct {
	store   store.Store
	objects storage.ObjectStore
}

// New creates a compiler over the given stores.
func New(st store.Store, objects storage.ObjectStore) *Compiler {
	return &Compiler{store: st, objects: objects}
}

// LoadUserRecipientLists parses every file the user has selected, keyed by
// file id. Files that no longer exist or that match no supported tabular
// format are logged and excluded rather than failing the whole load.
func (c *Compiler) LoadUserRecipientLists(ctx context.Context, userEmail string) (map[string]*tabular.Table, error) {
	userID, err := c.store.UserIDByEmail(ctx, userEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", userEmail, err)
	}

	fileIDs, err := c.store.SelectedFileIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list selections for %s: %w", userEmail, err)
	}

	lists := make(map[string]*tabular.Table, len(fileIDs))
	for _, fid := range fileIDs {
		f, err := c.store.ListFile(ctx, fid)
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("selected file missing, skipping", "file_id", fid, "user", userEmail)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch file %s: %w", fid, err)
		}

		raw, _, err := tabular.RawBytes(f.FileData)
		if err != nil {
			slog.Warn("selected file blob undecodable, skipping",
				"file_id", fid, "user", userEmail, "error", err)
			continue
		}

		table, err := tabular.ParseAny(raw)
		if err != nil {
			slog.Warn("selected file unparseable, skipping",
				"file_id", fid, "user", userEmail, "error", err)
			continue
		}
		lists[fid] = table
	}

	return lists, nil
}

// CompileAndStore regenerates a user's master list from their current
// selections. An empty selection deletes any existing artifact; deleting an
// absent artifact is a no-op.
func (c *Compiler) CompileAndStore(ctx context.Context, userEmail string) error {
	lists, err := c.LoadUserRecipientLists(ctx, userEmail)
	if err != nil {
		return err
	}

	key := ArtifactKey(userEmail)

	if len(lists) == 0 {
		slog.Info("no recipient lists selected, deleting master list", "user", userEmail)
		if err := c.objects.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete master list for %s: %w", userEmail, err)
		}
		return nil
	}

	data, err := concatenate(lists)
	if err != nil {
		return fmt.Errorf("serialize master list for %s: %w", userEmail, err)
	}

	if err := c.objects.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrPublish, userEmail, err)
	}

	slog.Info("master list published", "user", userEmail, "files", len(lists))
	return nil
}

// IsEmailInMasterList reports whether senderEmail appears in the user's
// compiled master list. A missing artifact means no membership. Matching is
// case-insensitive on the aliased email column.
func (c *Compiler) IsEmailInMasterList(ctx context.Context, userEmail, senderEmail string) (bool, error) {
	data, err := c.objects.Get(ctx, ArtifactKey(userEmail))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	table, err := tabular.ParseAny(data)
	if err != nil {
		return false, fmt.Errorf("parse master list for %s: %w", userEmail, err)
	}

	col, ok := table.Header.Resolve(tabular.FieldEmail)
	if !ok {
		return false, nil
	}

	want := strings.ToLower(strings.TrimSpace(senderEmail))
	for _, row := range table.Rows {
		if strings.ToLower(strings.TrimSpace(row[col])) == want {
			return true, nil
		}
	}
	return false, nil
}

// concatenate merges the parsed tables row-wise under the first table's
// header. Selections are assumed schema-homogeneous; columns a file lacks
// come through empty. File ids are sorted so identical inputs always
// serialize to identical bytes.
func concatenate(lists map[string]*tabular.Table) ([]byte, error) {
	ids := make([]string, 0, len(lists))
	for id := range lists {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	header := lists[ids[0]].Header

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	rec := make([]string, len(header))
	for _, id := range ids {
		for _, row := range lists[id].Rows {
			for i, col := range header {
				rec[i] = row[col]
			}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
