package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/multichat/internal/account"
	"github.com/matheus3301/multichat/internal/api"
	"github.com/matheus3301/multichat/internal/bus"
	"github.com/matheus3301/multichat/internal/chat"
	"github.com/matheus3301/multichat/internal/dispatch"
	"github.com/matheus3301/multichat/internal/lock"
	"github.com/matheus3301/multichat/internal/remote"
	"github.com/matheus3301/multichat/internal/store"
	intsync "github.com/matheus3301/multichat/internal/sync"
)

type components struct {
	db      *store.DB
	bus     *bus.Bus
	feed    *remote.Feed
	remote  *remote.Remote
	engine  *intsync.Engine
	manager *account.Manager
	disp    *dispatch.Dispatcher
	service *api.Service
}

// assemble mirrors what the fx module wires up, without the container.
func assemble(t *testing.T, dbPath string) *components {
	t.Helper()
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	feed := remote.NewFeed()
	r := remote.New(db, feed, logger)
	engine := intsync.NewEngine(r, b, logger)
	manager := account.NewManager(r, engine, b, account.Timing{
		ConfirmMin: 20 * time.Millisecond,
		ConfirmMax: 40 * time.Millisecond,
		Countdown:  time.Second,
	}, logger)
	disp := dispatch.New(r, engine, b, logger, 30*time.Millisecond)
	ix := chat.NewIndex(engine, r, logger)
	svc := api.NewService(engine, manager, disp, ix, b)

	return &components{
		db: db, bus: b, feed: feed, remote: r,
		engine: engine, manager: manager, disp: disp, service: svc,
	}
}

func (c *components) start(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := c.engine.Load(ctx); err != nil {
		t.Fatal(err)
	}
	c.engine.Start(context.Background())
}

func (c *components) stop(t *testing.T) {
	t.Helper()
	c.disp.Stop()
	c.manager.Close()
	c.engine.Stop()
	c.feed.Close()
	if err := c.db.Close(); err != nil {
		t.Errorf("close db: %v", err)
	}
}

// Full lifecycle: lock, link, send, restart, state survives the restart.
func TestDaemonLifecycle(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "multichat-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	profileDir := filepath.Join(tmpDir, "main")
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		t.Fatal(err)
	}

	lk, err := lock.Acquire(profileDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	if _, err := lock.Acquire(profileDir); err == nil {
		t.Fatal("second Acquire() should fail while daemon holds the lock")
	}

	ctx := context.Background()
	dbPath := filepath.Join(profileDir, "multichat.db")
	c := assemble(t, dbPath)
	c.start(t, ctx)

	linked, cancel := c.service.Events("account.linked", 10)

	a, err := c.service.CreateAccount(ctx, "Support")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.service.BeginLink(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	select {
	case <-linked:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for account.linked")
	}
	cancel()

	m, err := c.service.SendMessage(ctx, a.ID, "+620001", "", "hello")
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, _ := c.engine.Message(m.ID); got.Status == store.MessageDelivered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("message never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.stop(t)

	// Restart against the same database.
	c2 := assemble(t, dbPath)
	defer c2.stop(t)
	c2.start(t, ctx)

	accounts := c2.service.Accounts()
	if len(accounts) != 1 || accounts[0].Status != store.StatusConnected {
		t.Fatalf("accounts after restart = %+v, want one connected", accounts)
	}
	thread := c2.service.Thread(a.ID, "+620001")
	if len(thread) != 1 || thread[0].Status != store.MessageDelivered {
		t.Fatalf("thread after restart = %+v, want one delivered message", thread)
	}
	contacts := c2.service.VisibleContacts(a.ID, "")
	if len(contacts) != 1 || contacts[0].LastMessage != "hello" {
		t.Fatalf("contacts after restart = %+v", contacts)
	}
}
