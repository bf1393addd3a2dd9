package store

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestPGStoreReadRows(t *testing.T) {
	s := NewPG(nil) // ReadRows never touches the database

	blob := `\x` + hex.EncodeToString([]byte("email,name\na@b.com,Ada\n"))
	doc, err := s.ReadRows(ListFile{ID: "f1", FileData: blob})
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if got, want := len(doc.Rows), 1; got != want {
		t.Errorf("rows = %d, want %d", got, want)
	}
}

func TestPGStoreReadRowsUndecodable(t *testing.T) {
	s := NewPG(nil)

	_, err := s.ReadRows(ListFile{ID: "f1", FileData: `\xZZ`})
	if err == nil {
		t.Fatal("expected error for undecodable blob, got nil")
	}
	if !strings.Contains(err.Error(), "f1") {
		t.Errorf("error %q does not name the file", err)
	}
}

func TestWriteErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := &WriteError{FileID: "f1", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("WriteError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "f1") {
		t.Errorf("error %q does not name the file", err)
	}
}
