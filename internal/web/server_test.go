package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inboxops/mailtriage/internal/config"
)

type fakeProcessor struct {
	calls []string // "resource|userEmail"
	err   error
}

func (p *fakeProcessor) ProcessNotification(ctx context.Context, resource, userEmail string) error {
	p.calls = append(p.calls, resource+"|"+userEmail)
	return p.err
}

type fakeNotifier struct {
	users []string
	err   error
}

func (n *fakeNotifier) SelectionChanged(ctx context.Context, userID string) error {
	n.users = append(n.users, userID)
	return n.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(testConfig(), &fakeProcessor{}, &fakeNotifier{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestNotificationValidationHandshake(t *testing.T) {
	s := NewServer(testConfig(), &fakeProcessor{}, &fakeNotifier{})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/notification?validationToken=token-abc", nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", method, rec.Code, http.StatusOK)
		}
		if got := rec.Body.String(); got != "token-abc" {
			t.Errorf("%s body = %q, want raw token", method, got)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
			t.Errorf("%s content type = %q, want text/plain", method, ct)
		}
	}
}

func TestNotificationDispatch(t *testing.T) {
	p := &fakeProcessor{}
	s := NewServer(testConfig(), p, &fakeNotifier{})
	s.RegisterSubscription("sub-1", "box@corp.com")

	body := `{"value":[
		{"subscriptionId":"sub-1","resourceData":{"id":"m1"}},
		{"subscriptionId":"unknown","resourceData":{"id":"m2"}},
		{"subscriptionId":"sub-1","resourceData":{"id":""}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/notification", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	want := "users/box@corp.com/mailFolders('Inbox')/messages/m1|box@corp.com"
	if len(p.calls) != 1 || p.calls[0] != want {
		t.Errorf("calls = %v, want [%s]", p.calls, want)
	}
}

func TestNotificationProcessingFailureStillAccepted(t *testing.T) {
	p := &fakeProcessor{err: context.DeadlineExceeded}
	s := NewServer(testConfig(), p, &fakeNotifier{})
	s.RegisterSubscription("sub-1", "box@corp.com")

	body := `{"value":[{"subscriptionId":"sub-1","resourceData":{"id":"m1"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/notification", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d (202 acknowledges receipt, not triage)", rec.Code, http.StatusAccepted)
	}
}

func TestNotificationInvalidPayload(t *testing.T) {
	s := NewServer(testConfig(), &fakeProcessor{}, &fakeNotifier{})

	req := httptest.NewRequest(http.MethodPost, "/notification", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSelectionChanged(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		notifyErr  error
		wantStatus int
		wantUsers  int
	}{
		{
			name:       "ok",
			body:       `{"user_id":"u1"}`,
			wantStatus: http.StatusOK,
			wantUsers:  1,
		},
		{
			name:       "missing user_id",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "recompile failure",
			body:       `{"user_id":"u1"}`,
			notifyErr:  context.DeadlineExceeded,
			wantStatus: http.StatusInternalServerError,
			wantUsers:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{err: tt.notifyErr}
			s := NewServer(testConfig(), &fakeProcessor{}, n)

			req := httptest.NewRequest(http.MethodPost, "/selection-changed", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(n.users) != tt.wantUsers {
				t.Errorf("notified = %v, want %d calls", n.users, tt.wantUsers)
			}
		})
	}
}

func TestSelectionChangedRequiresAPIKeyWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"good-key"}
	s := NewServer(cfg, &fakeProcessor{}, &fakeNotifier{})

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "missing key", key: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", key: "bad-key", wantStatus: http.StatusForbidden},
		{name: "valid key", key: "good-key", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/selection-changed", strings.NewReader(`{"user_id":"u1"}`))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
