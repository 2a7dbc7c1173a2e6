// Package remote adapts the hosted data store's client-facing contract:
// ordered collection queries, echoing mutations, and a live change feed.
// Here the "hosted" store is the profile-local sqlite database; the contract
// is the same one a networked backend would serve.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/multichat/internal/store"
	"go.uber.org/zap"
)

// Remote serves the collection contract over the sqlite store and publishes
// a change event for every successful mutation.
type Remote struct {
	db     *store.DB
	feed   *Feed
	logger *zap.Logger
}

// New creates a remote-store adapter.
func New(db *store.DB, feed *Feed, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{db: db, feed: feed, logger: logger}
}

// Feed exposes the change feed for subscription.
func (r *Remote) Feed() *Feed {
	return r.feed
}

// wrap classifies a store error: stale ids pass through as ErrNotFound,
// anything else is a transport-level failure.
func wrap(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w (%v)", op, store.ErrUnavailable, err)
}

// ListAccounts returns the account snapshot, newest first.
func (r *Remote) ListAccounts(ctx context.Context) ([]store.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list accounts", err)
	}
	accounts, err := r.db.ListAccounts()
	if err != nil {
		return nil, wrap("list accounts", err)
	}
	return accounts, nil
}

// InsertAccount stores a new account and returns the echoed record.
func (r *Remote) InsertAccount(ctx context.Context, a store.Account) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, wrap("insert account", err)
	}
	stored, err := r.db.InsertAccount(a)
	if err != nil {
		return store.Account{}, wrap("insert account", err)
	}
	r.feed.Publish(Change{Op: OpInsert, Collection: CollectionAccounts, Record: stored})
	return stored, nil
}

// UpdateAccount applies a partial update. A stale id is ErrNotFound, never a
// silent no-op.
func (r *Remote) UpdateAccount(ctx context.Context, id int64, p store.AccountPatch) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, wrap("update account", err)
	}
	stored, err := r.db.UpdateAccount(id, p)
	if err != nil {
		return store.Account{}, wrap("update account", err)
	}
	r.feed.Publish(Change{Op: OpUpdate, Collection: CollectionAccounts, Record: stored})
	return stored, nil
}

// DeleteAccount removes an account.
func (r *Remote) DeleteAccount(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return wrap("delete account", err)
	}
	if err := r.db.DeleteAccount(id); err != nil {
		return wrap("delete account", err)
	}
	r.feed.Publish(Change{Op: OpDelete, Collection: CollectionAccounts, Record: store.Account{ID: id}})
	return nil
}

// ListContacts returns the contact snapshot by last-message recency.
func (r *Remote) ListContacts(ctx context.Context) ([]store.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list contacts", err)
	}
	contacts, err := r.db.ListContacts()
	if err != nil {
		return nil, wrap("list contacts", err)
	}
	return contacts, nil
}

// UpdateContact applies a partial update and returns the echoed record.
func (r *Remote) UpdateContact(ctx context.Context, id string, p store.ContactPatch) (store.Contact, error) {
	if err := ctx.Err(); err != nil {
		return store.Contact{}, wrap("update contact", err)
	}
	stored, err := r.db.UpdateContact(id, p)
	if err != nil {
		return store.Contact{}, wrap("update contact", err)
	}
	r.feed.Publish(Change{Op: OpUpdate, Collection: CollectionContacts, Record: stored})
	return stored, nil
}

// ListMessages returns the message snapshot ascending by timestamp.
func (r *Remote) ListMessages(ctx context.Context) ([]store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list messages", err)
	}
	msgs, err := r.db.ListMessages()
	if err != nil {
		return nil, wrap("list messages", err)
	}
	return msgs, nil
}

// InsertMessage persists a message, transactionally refreshing the
// counterparty contact's denormalized preview (and creating the contact on
// first touch). Both stored records are echoed back. Publishes the message
// insert and the contact change; the contact event is tagged as an insert
// and relies on consumers' idempotent upsert rule when the contact already
// existed.
func (r *Remote) InsertMessage(ctx context.Context, m store.Message) (store.Message, store.Contact, error) {
	if err := ctx.Err(); err != nil {
		return store.Message{}, store.Contact{}, wrap("insert message", err)
	}
	stored, contact, err := r.db.InsertMessage(m)
	if err != nil {
		return store.Message{}, store.Contact{}, wrap("insert message", err)
	}
	r.feed.Publish(Change{Op: OpInsert, Collection: CollectionMessages, Record: stored})
	r.feed.Publish(Change{Op: OpInsert, Collection: CollectionContacts, Record: contact})
	return stored, contact, nil
}

// UpdateMessageStatus advances a message's delivery status. Terminal
// statuses are immutable; the update is then an echo of the stored record.
func (r *Remote) UpdateMessageStatus(ctx context.Context, id string, status store.MessageStatus) (store.Message, error) {
	if err := ctx.Err(); err != nil {
		return store.Message{}, wrap("update message status", err)
	}
	stored, err := r.db.UpdateMessageStatus(id, status)
	if err != nil {
		return store.Message{}, wrap("update message status", err)
	}
	r.feed.Publish(Change{Op: OpUpdate, Collection: CollectionMessages, Record: stored})
	return stored, nil
}
