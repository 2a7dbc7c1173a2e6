// Package chat derives conversation views from the synced snapshot: the
// filtered contact list for an account and the message thread for a
// conversation. Projections are pure reads; the active account and selected
// conversation live with the caller, never here.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/matheus3301/multichat/internal/store"
	"github.com/matheus3301/multichat/internal/sync"
	"go.uber.org/zap"
)

// ContactStore is the slice of the remote contract needed for mark-read.
type ContactStore interface {
	UpdateContact(ctx context.Context, id string, p store.ContactPatch) (store.Contact, error)
}

// Index serves conversation projections over the engine snapshot.
type Index struct {
	engine *sync.Engine
	remote ContactStore
	logger *zap.Logger
}

// NewIndex creates a conversation index.
func NewIndex(engine *sync.Engine, remote ContactStore, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{engine: engine, remote: remote, logger: logger}
}

// VisibleContacts returns the active account's contacts, optionally filtered
// by a case-insensitive substring match on name or address, ordered by last
// message recency. Equal timestamps keep snapshot insertion order.
func (ix *Index) VisibleContacts(activeID int64, search string) []store.Contact {
	search = strings.ToLower(strings.TrimSpace(search))

	var out []store.Contact
	for _, c := range ix.engine.Contacts() {
		if c.AccountID != activeID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Phone), search) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime > out[j].LastMessageTime
	})
	return out
}

// Thread returns the conversation between the active account and one
// counterparty address, ascending by timestamp. This is the one projection
// where global timestamp order is authoritative regardless of direction.
func (ix *Index) Thread(activeID int64, phone string) []store.Message {
	var out []store.Message
	for _, m := range ix.engine.Messages() {
		if m.AccountID != activeID || m.Counterparty() != phone {
			continue
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// MarkRead resets a contact's unread count to zero, remotely then locally.
// An already-read contact is a no-op, not an error.
func (ix *Index) MarkRead(ctx context.Context, contactID string) error {
	contact, ok := ix.engine.Contact(contactID)
	if !ok {
		return fmt.Errorf("mark read: contact %s: %w", contactID, store.ErrNotFound)
	}
	if contact.UnreadCount == 0 {
		return nil
	}

	zero := 0
	stored, err := ix.remote.UpdateContact(ctx, contactID, store.ContactPatch{UnreadCount: &zero})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	ix.engine.UpsertContact(stored)
	return nil
}

// Stats summarizes an account's send activity for the dashboard: total
// message count and how many reached delivered.
func (ix *Index) Stats(activeID int64) (total, delivered int) {
	for _, m := range ix.engine.Messages() {
		if m.AccountID != activeID {
			continue
		}
		total++
		if m.Status == store.MessageDelivered {
			delivered++
		}
	}
	return total, delivered
}
