// Package processor handles inbound mail notifications: fetch the message,
// classify it, enqueue list-change events, and file the message into the
// matching inbox subfolder.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inboxops/mailtriage/internal/classify"
	"github.com/inboxops/mailtriage/internal/mailer"
)

// Destination folder names under the inbox.
const (
	FolderNotInterestedCompanies = "Not Interested - Companies"
	FolderNotInterestedInvestors = "Not Interested - Investors"
	FolderContactChanged         = "Contact Changed"
	FolderUnsubscribe            = "Unsubscribe"
)

// MailClient is the provider surface the processor needs.
type MailClient interface {
	FetchMessage(ctx context.Context, resource string) (*mailer.Message, error)
	EnsureSubfolder(ctx context.Context, userEmail, name string) (string, error)
	MoveMessage(ctx context.Context, userEmail, messageID, folderID string) error
}

// Classifier categorizes bodies and extracts replacement contacts.
type Classifier interface {
	Classify(ctx context.Context, body string) (classify.Category, error)
	ExtractContact(ctx context.Context, body string) (classify.Contact, error)
}

// EventSink receives the list-change facts extracted from replies.
type EventSink interface {
	EnqueueUnsubscribe(ctx context.Context, email string) error
	EnqueueContactChange(ctx context.Context, oldEmail, newEmail, newName string) error
}

// Membership answers whether a sender appears in a user's master list.
type Membership interface {
	IsEmailInMasterList(ctx context.Context, userEmail, senderEmail string) (bool, error)
}

// Processor routes one notification end to end. The seen set deduplicates
// repeated notifications for the same message within this process; it is
// not persisted across restarts.
type Processor struct {
	mail       MailClient
	classifier Classifier
	events     EventSink
	membership Membership

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a processor.
func New(mail MailClient, cl Classifier, events EventSink, membership Membership) *Processor {
	return &Processor{
		mail:       mail,
		classifier: cl,
		events:     events,
		membership: membership,
		seen:       make(map[string]struct{}),
	}
}

// ProcessNotification fetches and triages the message named by the
// notification resource for the given mailbox.
func (p *Processor) ProcessNotification(ctx context.Context, resource, userEmail string) error {
	msg, err := p.mail.FetchMessage(ctx, resource)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}

	if !p.markSeen(msg.ID) {
		slog.Debug("duplicate message notification, skipping", "message_id", msg.ID)
		return nil
	}

	body := CleanBody(msg.Body)

	category, err := p.classifier.Classify(ctx, body)
	if err != nil {
		slog.Warn("classification failed, treating as primary",
			"message_id", msg.ID, "error", err)
		category = classify.CategoryPrimary
	}
	slog.Info("email classified",
		"message_id", msg.ID, "from", msg.From, "category", string(category))

	folder := ""
	switch category {
	case classify.CategoryNotInterested:
		inList, err := p.membership.IsEmailInMasterList(ctx, userEmail, msg.From)
		if err != nil {
			slog.Warn("master list lookup failed, assuming not a company contact",
				"user", userEmail, "sender", msg.From, "error", err)
		}
		if inList {
			folder = FolderNotInterestedCompanies
		} else {
			folder = FolderNotInterestedInvestors
		}

	case classify.CategoryContactChanged:
		folder = FolderContactChanged
		contact, err := p.classifier.ExtractContact(ctx, body)
		if err != nil {
			slog.Error("contact extraction failed", "message_id", msg.ID, "error", err)
		} else if err := p.events.EnqueueContactChange(ctx, msg.From, contact.Email, contact.Name); err != nil {
			return fmt.Errorf("enqueue contact change: %w", err)
		}

	case classify.CategoryUnsubscribe:
		folder = FolderUnsubscribe
		if err := p.events.EnqueueUnsubscribe(ctx, msg.From); err != nil {
			return fmt.Errorf("enqueue unsubscribe: %w", err)
		}
	}

	if folder == "" {
		slog.Debug("keeping email in inbox", "message_id", msg.ID)
		return nil
	}

	folderID, err := p.mail.EnsureSubfolder(ctx, userEmail, folder)
	if err != nil {
		return fmt.Errorf("ensure folder %q: %w", folder, err)
	}
	if err := p.mail.MoveMessage(ctx, userEmail, msg.ID, folderID); err != nil {
		return fmt.Errorf("move to %q: %w", folder, err)
	}

	slog.Info("email filed", "message_id", msg.ID, "folder", folder)
	return nil
}

// markSeen records the message id and reports whether it was new.
func (p *Processor) markSeen(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.seen[messageID]; dup {
		return false
	}
	p.seen[messageID] = struct{}{}
	return true
}
