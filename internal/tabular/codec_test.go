package tabular

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func encodeBlob(prefix, text string) string {
	return prefix + hex.EncodeToString([]byte(text))
}

func TestRawBytes(t *testing.T) {
	tests := []struct {
		name       string
		blob       string
		want       string
		wantPrefix string
		wantErr    bool
	}{
		{
			name:       "backslash-x prefix",
			blob:       encodeBlob(`\x`, "email\na@b.com\n"),
			want:       "email\na@b.com\n",
			wantPrefix: `\x`,
		},
		{
			name:       "0x prefix",
			blob:       encodeBlob("0x", "email\na@b.com\n"),
			want:       "email\na@b.com\n",
			wantPrefix: "0x",
		},
		{
			name:       "bare hex",
			blob:       encodeBlob("", "email\n"),
			want:       "email\n",
			wantPrefix: "",
		},
		{
			name:    "invalid hex",
			blob:    `\xZZZZ`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, prefix, err := RawBytes(tt.blob)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("raw = %q, want %q", raw, tt.want)
			}
			if prefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", prefix, tt.wantPrefix)
			}
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	text := "Email ID,Contact Name\na@b.com,Ada\nc@d.com,Carl\n"
	blob := encodeBlob(`\x`, text)

	doc, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, want := len(doc.Rows), 2; got != want {
		t.Fatalf("rows = %d, want %d", got, want)
	}
	if got, want := doc.Header[0], "Email ID"; got != want {
		t.Errorf("header[0] = %q, want %q", got, want)
	}

	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if out != blob {
		t.Errorf("round trip = %q, want %q", out, blob)
	}
}

func TestDecodePreservesPrefixConvention(t *testing.T) {
	text := "email\na@b.com\n"

	for _, prefix := range []string{`\x`, "0x", ""} {
		doc, err := Decode(encodeBlob(prefix, text))
		if err != nil {
			t.Fatalf("Decode(prefix %q): %v", prefix, err)
		}
		out, err := doc.Encode()
		if err != nil {
			t.Fatalf("Encode(prefix %q): %v", prefix, err)
		}
		if !strings.HasPrefix(out, prefix) {
			t.Errorf("encoded blob %q does not keep prefix %q", out, prefix)
		}
	}
}

func TestDecodeStripsBOM(t *testing.T) {
	text := "\xEF\xBB\xBFemail\na@b.com\n"
	doc, err := Decode(encodeBlob(`\x`, text))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := doc.Header.Resolve(FieldEmail); !ok {
		t.Errorf("email column not resolved from BOM-prefixed header %v", doc.Header)
	}
}

func TestDecodeRaggedRows(t *testing.T) {
	text := "email,name\na@b.com\n"
	doc, err := Decode(encodeBlob("", text))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := doc.Rows[0]["name"]; got != "" {
		t.Errorf("short row name = %q, want empty", got)
	}
}

func TestDecodeEmptyBlob(t *testing.T) {
	if _, err := Decode(""); err == nil {
		t.Fatal("expected error for empty blob, got nil")
	}
}

func TestHeaderResolve(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		field   Field
		want    string
		wantOK  bool
	}{
		{
			name:   "exact email",
			header: Header{"email", "name"},
			field:  FieldEmail,
			want:   "email",
			wantOK: true,
		},
		{
			name:   "case-insensitive alias",
			header: Header{"Email ID", "Contact Name"},
			field:  FieldEmail,
			want:   "Email ID",
			wantOK: true,
		},
		{
			name:   "name alias",
			header: Header{"Email ID", "Contact Name"},
			field:  FieldName,
			want:   "Contact Name",
			wantOK: true,
		},
		{
			name:   "surrounding whitespace",
			header: Header{" email ", "name"},
			field:  FieldEmail,
			want:   " email ",
			wantOK: true,
		},
		{
			name:   "missing column",
			header: Header{"company", "phone"},
			field:  FieldEmail,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.header.Resolve(tt.field)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocumentValueColumnNotFound(t *testing.T) {
	doc, err := Decode(encodeBlob("", "company\nAcme\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, err = doc.Value(doc.Rows[0], FieldEmail)
	if !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("err = %v, want ErrColumnNotFound", err)
	}
}
