package dispatch

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/multichat/internal/bus"
	"github.com/matheus3301/multichat/internal/store"
	"github.com/matheus3301/multichat/internal/sync"
)

// MessageStore is the subset of the remote store used to persist outbound
// messages and delivery updates.
type MessageStore interface {
	InsertMessage(ctx context.Context, m store.Message) (store.Message, store.Contact, error)
	UpdateMessageStatus(ctx context.Context, id string, status store.MessageStatus) (store.Message, error)
}

// Dispatcher sends outbound messages: optimistic local insert first, then
// remote persist, then a simulated delivery acknowledgement.
type Dispatcher struct {
	remote MessageStore
	engine *sync.Engine
	bus    *bus.Bus
	logger *zap.Logger

	delay time.Duration

	mu     stdsync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     stdsync.WaitGroup
}

// DefaultDeliveryDelay is how long a persisted message stays in "sent"
// before the simulated delivery acknowledgement arrives.
const DefaultDeliveryDelay = 2 * time.Second

// New creates a dispatcher. A non-positive delay falls back to
// DefaultDeliveryDelay.
func New(remote MessageStore, engine *sync.Engine, b *bus.Bus, logger *zap.Logger, delay time.Duration) *Dispatcher {
	if delay <= 0 {
		delay = DefaultDeliveryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		remote: remote,
		engine: engine,
		bus:    b,
		logger: logger,
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Send dispatches a text message from a connected account. The message shows
// up locally before the remote write completes; the returned message carries
// the server-assigned id once persisted.
func (d *Dispatcher) Send(ctx context.Context, accountID int64, toPhone, fromPhone, body string) (store.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Message{}, fmt.Errorf("send: empty body: %w", store.ErrInvalidInput)
	}
	toPhone = strings.TrimSpace(toPhone)
	if toPhone == "" {
		return store.Message{}, fmt.Errorf("send: empty recipient: %w", store.ErrInvalidInput)
	}

	acct, ok := d.engine.Account(accountID)
	if !ok {
		return store.Message{}, fmt.Errorf("send: account %d: %w", accountID, store.ErrNotFound)
	}
	if acct.Status != store.StatusConnected {
		return store.Message{}, fmt.Errorf("send: account %d is %s: %w", accountID, acct.Status, store.ErrInvalidState)
	}
	if fromPhone == "" {
		fromPhone = acct.PhoneNumber
	}

	now := time.Now().UnixMilli()
	clientID := "local-" + uuid.NewString()
	pending := store.Message{
		ID:        clientID,
		AccountID: accountID,
		ToPhone:   toPhone,
		FromPhone: fromPhone,
		Direction: store.DirectionSent,
		Body:      body,
		Status:    store.MessageSent,
		Timestamp: now,
	}

	// Optimistic insert: the message is visible locally before the remote
	// write completes.
	d.engine.UpsertMessage(pending)

	// Refresh the local contact preview immediately. Outbound sends never
	// touch the unread counter.
	previewID := ""
	if c, ok := d.engine.ContactByPhone(accountID, toPhone); ok {
		previewID = c.ID
		c.LastMessage = body
		c.LastMessageTime = now
		d.engine.UpsertContact(c)
	} else {
		previewID = "local-" + uuid.NewString()
		d.engine.UpsertContact(store.Contact{
			ID:              previewID,
			AccountID:       accountID,
			Phone:           toPhone,
			Name:            toPhone,
			LastMessage:     body,
			LastMessageTime: now,
		})
	}

	stored, contact, err := d.remote.InsertMessage(ctx, store.Message{
		AccountID: accountID,
		ToPhone:   toPhone,
		FromPhone: fromPhone,
		Direction: store.DirectionSent,
		Body:      body,
		Status:    store.MessageSent,
		Timestamp: now,
	})
	if err != nil {
		d.logger.Error("failed to persist message",
			zap.Error(err),
			zap.Int64("account_id", accountID),
			zap.String("client_id", clientID))
		d.engine.SetMessageStatus(clientID, store.MessageFailed)
		d.bus.Publish(bus.Event{
			Kind: "message.send_failed",
			Payload: map[string]string{
				"client_id": clientID,
				"error":     err.Error(),
			},
		})
		pending.Status = store.MessageFailed
		return pending, fmt.Errorf("send: %w", err)
	}

	// Swap the transient ids for the server ones, keeping positions.
	d.engine.ReplaceMessage(clientID, stored)
	d.engine.ReplaceContact(previewID, contact)

	d.logger.Info("message sent",
		zap.Int64("account_id", accountID),
		zap.String("message_id", stored.ID))
	d.bus.Publish(bus.Event{
		Kind: "message.sent",
		Payload: map[string]string{
			"client_id":  clientID,
			"message_id": stored.ID,
		},
	})

	d.scheduleDelivery(stored.ID)
	return stored, nil
}

// scheduleDelivery arms the simulated delivery acknowledgement for a
// persisted message.
func (d *Dispatcher) scheduleDelivery(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.wg.Add(1)
	d.timers[id] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.deliver(id)
	})
}

func (d *Dispatcher) deliver(id string) {
	d.mu.Lock()
	delete(d.timers, id)
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}

	stored, err := d.remote.UpdateMessageStatus(context.Background(), id, store.MessageDelivered)
	if err != nil {
		d.logger.Error("failed to mark delivered", zap.Error(err), zap.String("message_id", id))
		return
	}
	// A no-op update means the message already reached a terminal status.
	if stored.Status != store.MessageDelivered {
		return
	}

	d.engine.UpsertMessage(stored)
	d.bus.Publish(bus.Event{
		Kind:    "message.delivered",
		Payload: map[string]string{"message_id": id},
	})
}

// Stop cancels pending delivery timers and waits for in-flight ones.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	for id, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
