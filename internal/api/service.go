package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/multichat/internal/account"
	"github.com/matheus3301/multichat/internal/bus"
	"github.com/matheus3301/multichat/internal/chat"
	"github.com/matheus3301/multichat/internal/dispatch"
	"github.com/matheus3301/multichat/internal/store"
	"github.com/matheus3301/multichat/internal/sync"
)

// Service is the in-process facade a frontend talks to. The active account
// and the selected conversation are caller-owned; the service holds no view
// state of its own.
type Service struct {
	engine     *sync.Engine
	manager    *account.Manager
	dispatcher *dispatch.Dispatcher
	index      *chat.Index
	bus        *bus.Bus
}

// NewService wires the facade over the core components.
func NewService(engine *sync.Engine, manager *account.Manager, dispatcher *dispatch.Dispatcher, index *chat.Index, b *bus.Bus) *Service {
	return &Service{
		engine:     engine,
		manager:    manager,
		dispatcher: dispatcher,
		index:      index,
		bus:        b,
	}
}

// Accounts returns the account list, newest first.
func (s *Service) Accounts() []store.Account {
	return s.engine.Accounts()
}

// CreateAccount registers a new account in the pending state.
func (s *Service) CreateAccount(ctx context.Context, name string) (store.Account, error) {
	return s.manager.Create(ctx, name)
}

// BeginLink starts the linking handshake for an account and returns it in the
// scanning state with a fresh linking token.
func (s *Service) BeginLink(ctx context.Context, id int64) (store.Account, error) {
	return s.manager.BeginLink(ctx, id)
}

// LinkQR renders the current linking token of a scanning account as a PNG.
func (s *Service) LinkQR(id int64, size int) ([]byte, error) {
	a, ok := s.engine.Account(id)
	if !ok {
		return nil, fmt.Errorf("link qr: account %d: %w", id, store.ErrNotFound)
	}
	if a.Status != store.StatusScanning || a.LinkingToken == "" {
		return nil, fmt.Errorf("link qr: account %d is %s: %w", id, a.Status, store.ErrInvalidState)
	}
	return account.QRCode(a.LinkingToken, size)
}

// RemoveAccount deletes an account and cancels any linking in progress.
func (s *Service) RemoveAccount(ctx context.Context, id int64) error {
	return s.manager.Remove(ctx, id)
}

// SendMessage dispatches a text message from a connected account.
func (s *Service) SendMessage(ctx context.Context, accountID int64, toPhone, fromPhone, body string) (store.Message, error) {
	return s.dispatcher.Send(ctx, accountID, toPhone, fromPhone, body)
}

// MarkRead clears a contact's unread counter.
func (s *Service) MarkRead(ctx context.Context, contactID string) error {
	return s.index.MarkRead(ctx, contactID)
}

// VisibleContacts returns the conversation list for one account, filtered by
// an optional search string.
func (s *Service) VisibleContacts(activeID int64, search string) []store.Contact {
	return s.index.VisibleContacts(activeID, search)
}

// Thread returns one conversation in chronological order.
func (s *Service) Thread(activeID int64, phone string) []store.Message {
	return s.index.Thread(activeID, phone)
}

// Contacts returns every contact across accounts, most recently active first.
func (s *Service) Contacts() []store.Contact {
	return s.engine.Contacts()
}

// Stats returns the message count and delivered count for one account.
func (s *Service) Stats(activeID int64) (total, delivered int) {
	return s.index.Stats(activeID)
}

// Events subscribes to domain events by kind prefix, for toasts and status
// surfaces. The cancel func releases the subscription.
func (s *Service) Events(namespace string, buf int) (<-chan bus.Event, func()) {
	return s.bus.Subscribe(namespace, buf)
}
