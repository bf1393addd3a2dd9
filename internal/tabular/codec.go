// Package tabular decodes and encodes the hex-wrapped delimited blobs that
// recipient list files are stored as, and resolves logical columns against
// heterogeneous headers.
//
// A list file blob is UTF-8 delimited text (header row first) hex-encoded
// with an optional "\x" or "0x" prefix. Column names vary per file
// ("email" vs "Email ID"), so all row access goes through Header.Resolve
// rather than assuming a canonical name.
package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrColumnNotFound indicates a requested logical column is absent from a
// file's header. Callers treat this as "skip this file", not a hard failure.
var ErrColumnNotFound = errors.New("column not found")

// Field is a logical column identity resolved against a file's actual header.
type Field int

const (
	FieldEmail Field = iota
	FieldName
)

// aliases maps logical fields to the header spellings seen in the wild.
// Matching is case-insensitive; the first header cell that matches wins.
var aliases = map[Field][]string{
	FieldEmail: {"email", "email id"},
	FieldName:  {"name", "contact name"},
}

func (f Field) String() string {
	switch f {
	case FieldEmail:
		return "email"
	case FieldName:
		return "name"
	default:
		return "unknown"
	}
}

// Header is the ordered sequence of column names from a file's first row.
// Order and casing are preserved across decode/encode round trips.
type Header []string

// Resolve returns the literal header string for a logical field, scanning
// the alias set case-insensitively. The second return is false when no
// header cell matches.
func (h Header) Resolve(f Field) (string, bool) {
	for _, alias := range aliases[f] {
		for _, col := range h {
			if strings.EqualFold(strings.TrimSpace(col), alias) {
				return col, true
			}
		}
	}
	return "", false
}

// Row is a single record keyed by the literal header strings.
type Row map[string]string

// Document is a decoded list file: header, rows, and the hex prefix
// convention observed on read so Encode can reproduce it.
type Document struct {
	Header Header
	Rows   []Row

	prefix string
}

// RawBytes strips the optional "\x" or "0x" prefix and hex-decodes a stored
// blob. The observed prefix is returned so writers can reproduce it.
func RawBytes(blob string) ([]byte, string, error) {
	prefix := ""
	hexStr := blob
	switch {
	case strings.HasPrefix(blob, `\x`):
		prefix = `\x`
		hexStr = blob[2:]
	case strings.HasPrefix(blob, "0x"):
		prefix = "0x"
		hexStr = blob[2:]
	}

	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, "", fmt.Errorf("decode hex blob: %w", err)
	}
	return raw, prefix, nil
}

// Decode converts a stored blob into a Document. The blob may be a bare hex
// string or prefixed with "\x" or "0x"; the decoded bytes are parsed as
// delimited text with a mandatory header row.
func Decode(blob string) (*Document, error) {
	raw, prefix, err := RawBytes(blob)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(stripBOM(raw)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse blob text: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse blob text: no header row")
	}

	header := Header(records[0])
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Document{Header: header, Rows: rows, prefix: prefix}, nil
}

// Encode serializes the document back to delimited text and re-applies the
// hex encoding with the prefix convention observed on Decode. Header order
// and field name casing are preserved.
func (d *Document) Encode() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(d.Header); err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	rec := make([]string, len(d.Header))
	for _, row := range d.Rows {
		for i, col := range d.Header {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("encode row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}

	return d.prefix + hex.EncodeToString(buf.Bytes()), nil
}

// Value returns the row's value for a logical field, resolving the column
// through the header aliases. Returns ErrColumnNotFound if the header has
// no matching column.
func (d *Document) Value(row Row, f Field) (string, error) {
	col, ok := d.Header.Resolve(f)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrColumnNotFound, f)
	}
	return row[col], nil
}
