// Package web provides the HTTP surface: the mail provider's webhook
// notification endpoint and the selection-change push trigger.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/inboxops/mailtriage/internal/config"
	"github.com/inboxops/mailtriage/internal/web/middleware"
)

// NotificationProcessor triages one inbound message notification.
type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, resource, userEmail string) error
}

// SelectionNotifier recompiles a user's master list after a selection change.
type SelectionNotifier interface {
	SelectionChanged(ctx context.Context, userID string) error
}

// Server is the webhook HTTP server.
type Server struct {
	cfg       *config.Config
	processor NotificationProcessor
	notifier  SelectionNotifier
	router    *chi.Mux
	server    *http.Server

	mu   sync.RWMutex
	subs map[string]string // subscription id -> mailbox email
}

// NewServer creates a server wired to the processor and push trigger.
func NewServer(cfg *config.Config, p NotificationProcessor, n SelectionNotifier) *Server {
	s := &Server{
		cfg:       cfg,
		processor: p,
		notifier:  n,
		router:    chi.NewRouter(),
		subs:      make(map[string]string),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// RegisterSubscription maps a webhook subscription id to its mailbox.
func (s *Server) RegisterSubscription(subID, userEmail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[subID] = userEmail
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// The provider probes with both verbs during subscription validation.
	s.router.Get("/notification", s.handleNotification)
	s.router.Post("/notification", s.handleNotification)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))
		r.Post("/selection-changed", s.handleSelectionChanged)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// notificationPayload is the provider's webhook body.
type notificationPayload struct {
	Value []struct {
		SubscriptionID string `json:"subscriptionId"`
		ResourceData   struct {
			ID string `json:"id"`
		} `json:"resourceData"`
	} `json:"value"`
}

// handleNotification answers the validation handshake and processes message
// notifications. Unknown subscription ids and items without a message id are
// skipped, matching provider retry semantics: the 202 acknowledges receipt,
// not successful triage.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, token)
		return
	}

	var payload notificationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification payload")
		return
	}

	for _, item := range payload.Value {
		s.mu.RLock()
		userEmail, ok := s.subs[item.SubscriptionID]
		s.mu.RUnlock()
		if !ok {
			slog.Warn("notification for unknown subscription, skipping",
				"subscription_id", item.SubscriptionID)
			continue
		}

		messageID := item.ResourceData.ID
		if messageID == "" {
			continue
		}

		resource := fmt.Sprintf("users/%s/mailFolders('Inbox')/messages/%s", userEmail, messageID)
		slog.Info("new email notification", "user", userEmail)

		if err := s.processor.ProcessNotification(r.Context(), resource, userEmail); err != nil {
			slog.Error("notification processing failed",
				"user", userEmail, "message_id", messageID, "error", err)
		}
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "received"})
}

// handleSelectionChanged is the push trigger for master list recompilation.
func (s *Server) handleSelectionChanged(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.notifier.SelectionChanged(r.Context(), body.UserID); err != nil {
		slog.Error("selection change trigger failed", "user_id", body.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "recompilation failed")
		return
	}

	writeJSON(w, map[string]string{"status": "compiled"})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	slog.Warn("http error response", "status", status, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
