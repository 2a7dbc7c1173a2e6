package remote

import "sync"

// Op tags a change event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Collection names served by the remote store.
const (
	CollectionAccounts = "accounts"
	CollectionContacts = "contacts"
	CollectionMessages = "messages"
)

// Change is one tagged change event for a collection. Record holds the full
// stored record (store.Account, store.Contact or store.Message by value);
// for deletes only the record id fields are meaningful.
type Change struct {
	Op         Op
	Collection string
	Record     any
}

// Feed fans change events out to per-collection subscribers. Delivery is
// causal per record (a record's insert is published before any update or
// delete for it) but carries no global ordering across records. Publishing
// never blocks; a full subscriber misses the event.
type Feed struct {
	mu     sync.RWMutex
	subs   map[int]*feedSub
	next   int
	closed bool
}

type feedSub struct {
	collection string
	ch         chan Change
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*feedSub)}
}

// Publish delivers ch to every subscriber of its collection.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, sub := range f.subs {
		if sub.collection == c.Collection {
			select {
			case sub.ch <- c:
			default:
			}
		}
	}
}

// Subscribe returns a live stream of change events for one collection and a
// cancel func. Cancel deterministically stops delivery and closes the
// channel; no event is delivered after it returns. The stream is not
// restartable: a cancelled or closed subscription requires a fresh Subscribe.
func (f *Feed) Subscribe(collection string, bufSize int) (<-chan Change, func()) {
	ch := make(chan Change, bufSize)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := f.next
	f.next++
	f.subs[id] = &feedSub{collection: collection, ch: ch}
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		// Close only if still registered; Close() or an earlier cancel may
		// have already released the channel.
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
	}
}

// Close ends every subscription, closing their channels.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
	}
}
