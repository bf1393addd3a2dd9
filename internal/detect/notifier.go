package detect

import (
	"context"
	"fmt"

	"github.com/inboxops/mailtriage/internal/store"
)

// Notifier is the push-triggered recompute path, invoked synchronously by
// the webhook handler when a selection row changes.
type Notifier struct {
	store    store.Store
	compiler Compiler
}

// NewNotifier creates a push trigger over the given store and compiler.
func NewNotifier(st store.Store, c Compiler) *Notifier {
	return &Notifier{store: st, compiler: c}
}

// SelectionChanged resolves the user and recompiles their master list once.
func (n *Notifier) SelectionChanged(ctx context.Context, userID string) error {
	email, err := n.store.EmailByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user %s: %w", userID, err)
	}
	if err := n.compiler.CompileAndStore(ctx, email); err != nil {
		return fmt.Errorf("compile master list for %s: %w", email, err)
	}
	return nil
}
