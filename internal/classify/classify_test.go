package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func completionServer(t *testing.T, reply string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Category
	}{
		{name: "not interested", reply: "Not Interested", want: CategoryNotInterested},
		{name: "contact changed", reply: "Contact Changed", want: CategoryContactChanged},
		{name: "unsubscribe", reply: "Unsubscribe", want: CategoryUnsubscribe},
		{name: "primary", reply: "Primary", want: CategoryPrimary},
		{name: "whitespace padded", reply: "  Unsubscribe\n", want: CategoryUnsubscribe},
		{name: "unrecognized maps to primary", reply: "Spam maybe?", want: CategoryPrimary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.reply, nil)
			defer srv.Close()

			c := New("key", srv.URL, "test-model")
			got, err := c.Classify(context.Background(), "some email body")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("key", srv.URL, "test-model")
	got, err := c.Classify(context.Background(), "body")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got != CategoryPrimary {
		t.Errorf("category on failure = %q, want %q", got, CategoryPrimary)
	}
}

func TestClassifySendsModelAndBody(t *testing.T) {
	var req map[string]any
	srv := completionServer(t, "Primary", &req)
	defer srv.Close()

	c := New("key", srv.URL, "test-model")
	if _, err := c.Classify(context.Background(), "the email body"); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got := req["model"]; got != "test-model" {
		t.Errorf("model = %v, want test-model", got)
	}
	msgs, ok := req["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v", req["messages"])
	}
	content := msgs[0].(map[string]any)["content"].(string)
	if !strings.Contains(content, "the email body") {
		t.Errorf("prompt does not embed the email body: %q", content)
	}
}

func TestExtractContact(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Contact
		wantErr bool
	}{
		{
			name:  "plain json",
			reply: `{"new_contact_name": "Ada Lovelace", "new_contact_email": "ada@x.com"}`,
			want:  Contact{Name: "Ada Lovelace", Email: "ada@x.com"},
		},
		{
			name:  "fenced json",
			reply: "```json\n{\"new_contact_name\": \"Ada\", \"new_contact_email\": \"ada@x.com\"}\n```",
			want:  Contact{Name: "Ada", Email: "ada@x.com"},
		},
		{
			name:  "empty fields",
			reply: `{"new_contact_name": "", "new_contact_email": ""}`,
			want:  Contact{},
		},
		{
			name:    "prose instead of json",
			reply:   "The new contact is Ada at ada@x.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.reply, nil)
			defer srv.Close()

			c := New("key", srv.URL, "test-model")
			got, err := c.ExtractContact(context.Background(), "body")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractContact: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
