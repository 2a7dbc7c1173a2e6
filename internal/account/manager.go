// Package account drives the messaging-account connection lifecycle:
// creation, the simulated linking handshake, and removal.
package account

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/multichat/internal/bus"
	"github.com/matheus3301/multichat/internal/store"
	"github.com/matheus3301/multichat/internal/sync"
	"go.uber.org/zap"
)

// Store is the slice of the remote contract the manager needs.
type Store interface {
	InsertAccount(ctx context.Context, a store.Account) (store.Account, error)
	UpdateAccount(ctx context.Context, id int64, p store.AccountPatch) (store.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
}

// Timing bounds the simulated linking handshake.
type Timing struct {
	// ConfirmMin/ConfirmMax bound the randomized external-confirmation
	// delay.
	ConfirmMin time.Duration
	ConfirmMax time.Duration
	// Countdown caps the overall wait visible to the caller.
	Countdown time.Duration
}

// DefaultTiming matches the hosted flow: confirmation lands in 5-15s,
// callers wait at most 60s.
func DefaultTiming() Timing {
	return Timing{
		ConfirmMin: 5 * time.Second,
		ConfirmMax: 15 * time.Second,
		Countdown:  60 * time.Second,
	}
}

// Manager owns account lifecycle operations and at most one live linker per
// account.
type Manager struct {
	remote Store
	engine *sync.Engine
	bus    *bus.Bus
	logger *zap.Logger
	timing Timing

	mu      stdsync.Mutex
	linkers map[int64]linker
	wg      stdsync.WaitGroup
}

// linker tracks one live handshake. The token identifies it so a finished
// linker never releases a successor registered under the same account id.
type linker struct {
	cancel context.CancelFunc
	token  string
}

// NewManager creates an account lifecycle manager.
func NewManager(remote Store, engine *sync.Engine, b *bus.Bus, timing Timing, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		remote:  remote,
		engine:  engine,
		bus:     b,
		logger:  logger,
		timing:  timing,
		linkers: make(map[int64]linker),
	}
}

// Create registers a new account in pending state. The local snapshot is
// updated from the echoed record, never from a locally fabricated one, so
// the server-assigned id is authoritative from the start.
func (m *Manager) Create(ctx context.Context, name string) (store.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Account{}, fmt.Errorf("create account: name required: %w", store.ErrInvalidInput)
	}

	stored, err := m.remote.InsertAccount(ctx, store.Account{Name: name, Status: store.StatusPending})
	if err != nil {
		return store.Account{}, fmt.Errorf("create account: %w", err)
	}
	m.engine.UpsertAccount(stored)

	m.logger.Info("account created", zap.Int64("id", stored.ID), zap.String("name", stored.Name))
	return stored, nil
}

// BeginLink starts the linking handshake: the account moves to scanning with
// a fresh linking token, and a simulated external confirmation is scheduled.
// A second call for an account already mid-handshake cancels the first
// linker before starting over, so at most one confirmation can ever land.
func (m *Manager) BeginLink(ctx context.Context, id int64) (store.Account, error) {
	acct, ok := m.engine.Account(id)
	if !ok {
		return store.Account{}, fmt.Errorf("begin link: account %d: %w", id, store.ErrNotFound)
	}
	if !CanTransition(acct.Status, store.StatusScanning) {
		return store.Account{}, fmt.Errorf("begin link: account %d is %s: %w", id, acct.Status, store.ErrInvalidState)
	}

	m.cancelLinker(id)

	token := uuid.NewString()
	scanning := store.StatusScanning
	stored, err := m.remote.UpdateAccount(ctx, id, store.AccountPatch{
		Status:       &scanning,
		LinkingToken: &token,
	})
	if err != nil {
		return store.Account{}, fmt.Errorf("begin link: %w", err)
	}
	m.engine.UpsertAccount(stored)

	linkCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.linkers[id] = linker{cancel: cancel, token: token}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runLinker(linkCtx, id, token)

	m.logger.Info("linking started", zap.Int64("id", id))
	return stored, nil
}

// runLinker races the randomized confirmation timer against the countdown.
// Whichever fires first decides the outcome; the loser is stopped, and a
// cancelled context (teardown, re-link, removal) stops both.
func (m *Manager) runLinker(ctx context.Context, id int64, token string) {
	defer m.wg.Done()
	defer m.releaseLinker(id, token)

	confirmAfter := m.timing.ConfirmMin
	if spread := m.timing.ConfirmMax - m.timing.ConfirmMin; spread > 0 {
		confirmAfter += time.Duration(rand.Int63n(int64(spread)))
	}

	confirm := time.NewTimer(confirmAfter)
	defer confirm.Stop()
	countdown := time.NewTimer(m.timing.Countdown)
	defer countdown.Stop()

	select {
	case <-confirm.C:
		m.confirmLink(ctx, id, token)
	case <-countdown.C:
		m.expireLink(ctx, id, token)
	case <-ctx.Done():
	}
}

// stillScanning guards every linker outcome: nothing may be applied once the
// account has left scanning or the token has been superseded.
func (m *Manager) stillScanning(id int64, token string) bool {
	acct, ok := m.engine.Account(id)
	return ok && acct.Status == store.StatusScanning && acct.LinkingToken == token
}

func (m *Manager) confirmLink(ctx context.Context, id int64, token string) {
	if !m.stillScanning(id, token) {
		return
	}

	connected := store.StatusConnected
	phone := SyntheticPhone()
	noToken := ""
	active := true
	now := time.Now().UnixMilli()

	// Write-then-reflect: the remote store must hold the connected state
	// before the local view advertises it.
	stored, err := m.remote.UpdateAccount(ctx, id, store.AccountPatch{
		Status:       &connected,
		PhoneNumber:  &phone,
		LinkingToken: &noToken,
		IsActive:     &active,
		LastSeen:     &now,
	})
	if err != nil {
		m.logger.Warn("link confirmation persist failed", zap.Int64("id", id), zap.Error(err))
		m.revertLink(ctx, id, token)
		m.bus.Publish(bus.Event{Kind: "account.link_failed", Payload: id})
		return
	}
	if ctx.Err() != nil {
		// Cancelled while the write was in flight; the successor's state
		// supersedes this one, so nothing is reflected locally.
		return
	}
	m.engine.UpsertAccount(stored)

	m.logger.Info("account linked", zap.Int64("id", id), zap.String("phone", stored.PhoneNumber))
	m.bus.Publish(bus.Event{Kind: "account.linked", Payload: stored})
}

func (m *Manager) expireLink(ctx context.Context, id int64, token string) {
	if !m.stillScanning(id, token) {
		return
	}
	m.revertLink(ctx, id, token)
	m.logger.Info("linking timed out", zap.Int64("id", id))
	m.bus.Publish(bus.Event{Kind: "account.link_timeout", Payload: id})
}

// revertLink returns a scanning account to not_connected. The local state is
// corrected even when the remote write fails: stale-but-consistent beats
// advertising a handshake that is no longer running.
func (m *Manager) revertLink(ctx context.Context, id int64, token string) {
	notConnected := store.StatusNotConnected
	noToken := ""
	patch := store.AccountPatch{Status: &notConnected, LinkingToken: &noToken}

	stored, err := m.remote.UpdateAccount(ctx, id, patch)
	if err != nil {
		m.logger.Warn("link revert persist failed", zap.Int64("id", id), zap.Error(err))
		if acct, ok := m.engine.Account(id); ok && acct.LinkingToken == token {
			acct.Status = store.StatusNotConnected
			acct.LinkingToken = ""
			m.engine.UpsertAccount(acct)
		}
		return
	}
	m.engine.UpsertAccount(stored)
}

// Remove deletes an account remotely and locally regardless of lifecycle
// state; any linker in flight is cancelled first. Contacts and messages keep
// their dangling account reference. Reassigning the active-account selection
// is the caller's job.
func (m *Manager) Remove(ctx context.Context, id int64) error {
	m.cancelLinker(id)

	err := m.remote.DeleteAccount(ctx, id)
	m.engine.DeleteAccount(id)
	if err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	m.logger.Info("account removed", zap.Int64("id", id))
	return nil
}

// Close cancels every live linker and waits for them to unwind. After Close
// returns no timer may fire against the (possibly discarded) view.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, l := range m.linkers {
		l.cancel()
		delete(m.linkers, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) cancelLinker(id int64) {
	m.mu.Lock()
	l, ok := m.linkers[id]
	if ok {
		delete(m.linkers, id)
	}
	m.mu.Unlock()
	if ok {
		l.cancel()
	}
}

func (m *Manager) releaseLinker(id int64, token string) {
	m.mu.Lock()
	if l, ok := m.linkers[id]; ok && l.token == token {
		delete(m.linkers, id)
	}
	m.mu.Unlock()
}
