// Package sync keeps an in-memory view of the remote collections consistent
// with the remote store: an initial ordered snapshot, then a live change
// subscription merged under an idempotent upsert-by-id rule.
package sync

import (
	"context"
	"fmt"
	"slices"
	stdsync "sync"

	"github.com/matheus3301/multichat/internal/bus"
	"github.com/matheus3301/multichat/internal/remote"
	"github.com/matheus3301/multichat/internal/store"
	"go.uber.org/zap"
)

// Engine owns the local snapshot of accounts, contacts and messages. All
// reads and local optimistic mutations go through it; feed events and local
// writes converge via the same merge rules: an insert for a known id acts as
// an update, an update or delete for an unknown id is a no-op, and message
// statuses never regress.
type Engine struct {
	remote *remote.Remote
	bus    *bus.Bus
	logger *zap.Logger

	mu           stdsync.Mutex
	accounts     map[int64]store.Account
	accountOrder []int64 // newest first
	contacts     map[string]store.Contact
	contactOrder []string // newest first
	messages     map[string]store.Message
	messageOrder []string // arrival order

	cancel context.CancelFunc
	paused bool
}

// NewEngine creates an engine over the given remote store.
func NewEngine(r *remote.Remote, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		remote:   r,
		bus:      b,
		logger:   logger,
		accounts: make(map[int64]store.Account),
		contacts: make(map[string]store.Contact),
		messages: make(map[string]store.Message),
	}
}

// Load replaces the snapshot with the remote store's current contents.
func (e *Engine) Load(ctx context.Context) error {
	accounts, err := e.remote.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	contacts, err := e.remote.ListContacts(ctx)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	messages, err := e.remote.ListMessages(ctx)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.accounts = make(map[int64]store.Account, len(accounts))
	e.accountOrder = e.accountOrder[:0]
	for _, a := range accounts {
		e.accounts[a.ID] = a
		e.accountOrder = append(e.accountOrder, a.ID)
	}
	e.contacts = make(map[string]store.Contact, len(contacts))
	e.contactOrder = e.contactOrder[:0]
	for _, c := range contacts {
		e.contacts[c.ID] = c
		e.contactOrder = append(e.contactOrder, c.ID)
	}
	e.messages = make(map[string]store.Message, len(messages))
	e.messageOrder = e.messageOrder[:0]
	for _, m := range messages {
		e.messages[m.ID] = m
		e.messageOrder = append(e.messageOrder, m.ID)
	}

	e.logger.Info("snapshot loaded",
		zap.Int("accounts", len(accounts)),
		zap.Int("contacts", len(contacts)),
		zap.Int("messages", len(messages)))
	return nil
}

// Start subscribes to the three collection feeds and merges events until the
// context is cancelled or the feed drops. A dropped feed pauses live updates
// and publishes sync.paused; the engine keeps serving the last snapshot and
// never reconnects on its own — Start may be called again to resume.
func (e *Engine) Start(ctx context.Context) {
	e.Stop()
	ctx, cancel := context.WithCancel(ctx)

	feed := e.remote.Feed()
	accCh, unsubAcc := feed.Subscribe(remote.CollectionAccounts, 256)
	ctCh, unsubCt := feed.Subscribe(remote.CollectionContacts, 256)
	msgCh, unsubMsg := feed.Subscribe(remote.CollectionMessages, 256)

	e.mu.Lock()
	e.cancel = cancel
	e.paused = false
	e.mu.Unlock()

	go func() {
		defer unsubAcc()
		defer unsubCt()
		defer unsubMsg()
		for {
			select {
			case c, ok := <-accCh:
				if !ok {
					e.pause()
					return
				}
				e.applyAccount(c)
			case c, ok := <-ctCh:
				if !ok {
					e.pause()
					return
				}
				e.applyContact(c)
			case c, ok := <-msgCh:
				if !ok {
					e.pause()
					return
				}
				e.applyMessage(c)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the subscription loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Paused reports whether live updates have dropped since the last Start.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) pause() {
	e.mu.Lock()
	already := e.paused
	e.paused = true
	e.mu.Unlock()
	if already {
		return
	}
	e.logger.Warn("change feed dropped, live updates paused")
	if e.bus != nil {
		e.bus.Publish(bus.Event{Kind: "sync.paused"})
	}
}

func (e *Engine) applyAccount(c remote.Change) {
	rec, ok := c.Record.(store.Account)
	if !ok {
		return
	}
	switch c.Op {
	case remote.OpInsert:
		e.UpsertAccount(rec)
	case remote.OpUpdate:
		e.mu.Lock()
		if _, known := e.accounts[rec.ID]; known {
			e.accounts[rec.ID] = rec
		}
		e.mu.Unlock()
	case remote.OpDelete:
		e.DeleteAccount(rec.ID)
	}
}

func (e *Engine) applyContact(c remote.Change) {
	rec, ok := c.Record.(store.Contact)
	if !ok {
		return
	}
	switch c.Op {
	case remote.OpInsert:
		e.UpsertContact(rec)
	case remote.OpUpdate:
		e.mu.Lock()
		if _, known := e.contacts[rec.ID]; known {
			e.contacts[rec.ID] = rec
		}
		e.mu.Unlock()
	case remote.OpDelete:
		e.mu.Lock()
		if _, known := e.contacts[rec.ID]; known {
			delete(e.contacts, rec.ID)
			e.contactOrder = slices.DeleteFunc(e.contactOrder, func(id string) bool { return id == rec.ID })
		}
		e.mu.Unlock()
	}
}

func (e *Engine) applyMessage(c remote.Change) {
	rec, ok := c.Record.(store.Message)
	if !ok {
		return
	}
	switch c.Op {
	case remote.OpInsert:
		e.UpsertMessage(rec)
	case remote.OpUpdate:
		e.mu.Lock()
		if cur, known := e.messages[rec.ID]; known {
			e.messages[rec.ID] = mergeMessage(cur, rec)
		}
		e.mu.Unlock()
	case remote.OpDelete:
		e.mu.Lock()
		if _, known := e.messages[rec.ID]; known {
			delete(e.messages, rec.ID)
			e.messageOrder = slices.DeleteFunc(e.messageOrder, func(id string) bool { return id == rec.ID })
		}
		e.mu.Unlock()
	}
}

// mergeMessage applies last-writer-wins for everything except the delivery
// status, which only ever moves forward.
func mergeMessage(cur, next store.Message) store.Message {
	if store.MessageStatusRegresses(cur.Status, next.Status) {
		next.Status = cur.Status
	}
	return next
}

// UpsertAccount merges an account into the snapshot. New accounts rank as
// most recent.
func (e *Engine) UpsertAccount(a store.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, known := e.accounts[a.ID]; !known {
		e.accountOrder = append([]int64{a.ID}, e.accountOrder...)
	}
	e.accounts[a.ID] = a
}

// DeleteAccount drops an account from the snapshot. Unknown ids are a no-op.
func (e *Engine) DeleteAccount(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, known := e.accounts[id]; !known {
		return
	}
	delete(e.accounts, id)
	e.accountOrder = slices.DeleteFunc(e.accountOrder, func(aid int64) bool { return aid == id })
}

// UpsertContact merges a contact into the snapshot.
func (e *Engine) UpsertContact(c store.Contact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, known := e.contacts[c.ID]; !known {
		e.contactOrder = append([]string{c.ID}, e.contactOrder...)
	}
	e.contacts[c.ID] = c
}

// UpsertMessage merges a message into the snapshot, preserving its position
// when already present and guarding the status against regression.
func (e *Engine) UpsertMessage(m store.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, known := e.messages[m.ID]; known {
		e.messages[m.ID] = mergeMessage(cur, m)
		return
	}
	e.messages[m.ID] = m
	e.messageOrder = append(e.messageOrder, m.ID)
}

// ReplaceContact swaps a transient client-side contact for the authoritative
// stored record, keeping the transient record's position. If the feed already
// delivered the stored record independently, the duplicate is collapsed into
// the transient slot.
func (e *Engine) ReplaceContact(oldID string, c store.Contact) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, known := e.contacts[oldID]; !known {
		if _, ok := e.contacts[c.ID]; !ok {
			e.contactOrder = append([]string{c.ID}, e.contactOrder...)
		}
		e.contacts[c.ID] = c
		return
	}

	if _, ok := e.contacts[c.ID]; ok && c.ID != oldID {
		e.contactOrder = slices.DeleteFunc(e.contactOrder, func(id string) bool { return id == c.ID })
	}

	delete(e.contacts, oldID)
	e.contacts[c.ID] = c
	for i, id := range e.contactOrder {
		if id == oldID {
			e.contactOrder[i] = c.ID
			break
		}
	}
}

// ReplaceMessage swaps a transient client-side message for the authoritative
// stored record, keeping the transient record's position. If the feed
// already delivered the stored record independently, the duplicate is
// collapsed into the transient slot.
func (e *Engine) ReplaceMessage(oldID string, m store.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, known := e.messages[oldID]
	if !known {
		// Transient record already gone; fall back to a plain upsert.
		if existing, ok := e.messages[m.ID]; ok {
			e.messages[m.ID] = mergeMessage(existing, m)
		} else {
			e.messages[m.ID] = m
			e.messageOrder = append(e.messageOrder, m.ID)
		}
		return
	}

	if dup, ok := e.messages[m.ID]; ok && m.ID != oldID {
		m = mergeMessage(dup, m)
		e.messageOrder = slices.DeleteFunc(e.messageOrder, func(id string) bool { return id == m.ID })
	}

	delete(e.messages, oldID)
	e.messages[m.ID] = mergeMessage(cur, m)
	for i, id := range e.messageOrder {
		if id == oldID {
			e.messageOrder[i] = m.ID
			break
		}
	}
}

// SetMessageStatus advances a message's status locally. Unknown ids and
// regressions are no-ops.
func (e *Engine) SetMessageStatus(id string, status store.MessageStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, known := e.messages[id]
	if !known || cur.Status != store.MessageSent || store.MessageStatusRegresses(cur.Status, status) {
		return
	}
	cur.Status = status
	e.messages[id] = cur
}

// Account returns one account from the snapshot.
func (e *Engine) Account(id int64) (store.Account, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.accounts[id]
	return a, ok
}

// Accounts returns the snapshot, newest first.
func (e *Engine) Accounts() []store.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]store.Account, 0, len(e.accountOrder))
	for _, id := range e.accountOrder {
		out = append(out, e.accounts[id])
	}
	return out
}

// Contact returns one contact from the snapshot.
func (e *Engine) Contact(id string) (store.Contact, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contacts[id]
	return c, ok
}

// ContactByPhone returns the contact for an (account, address) pair.
func (e *Engine) ContactByPhone(accountID int64, phone string) (store.Contact, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.contacts {
		if c.AccountID == accountID && c.Phone == phone {
			return c, true
		}
	}
	return store.Contact{}, false
}

// Contacts returns the snapshot in insertion order, newest first.
func (e *Engine) Contacts() []store.Contact {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]store.Contact, 0, len(e.contactOrder))
	for _, id := range e.contactOrder {
		out = append(out, e.contacts[id])
	}
	return out
}

// Message returns one message from the snapshot.
func (e *Engine) Message(id string) (store.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.messages[id]
	return m, ok
}

// Messages returns the snapshot in arrival order.
func (e *Engine) Messages() []store.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]store.Message, 0, len(e.messageOrder))
	for _, id := range e.messageOrder {
		out = append(out, e.messages[id])
	}
	return out
}
