package remote

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/multichat/internal/store"
)

func testRemote(t *testing.T) *Remote {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, NewFeed(), nil)
}

func recvChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("feed channel closed")
		}
		return c
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change event")
	}
	return Change{}
}

func TestInsertAccountEchoesAndPublishes(t *testing.T) {
	r := testRemote(t)
	ch, cancel := r.Feed().Subscribe(CollectionAccounts, 10)
	defer cancel()

	stored, err := r.InsertAccount(context.Background(), store.Account{Name: "Support"})
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID == 0 || stored.CreatedAt == 0 {
		t.Errorf("echoed record missing server fields: %+v", stored)
	}

	c := recvChange(t, ch)
	if c.Op != OpInsert || c.Collection != CollectionAccounts {
		t.Errorf("change = %+v", c)
	}
	if rec := c.Record.(store.Account); rec.ID != stored.ID {
		t.Errorf("record id = %d, want %d", rec.ID, stored.ID)
	}
}

func TestUpdateAccountNotFound(t *testing.T) {
	r := testRemote(t)
	st := store.StatusConnected
	_, err := r.UpdateAccount(context.Background(), 404, store.AccountPatch{Status: &st})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertMessagePublishesContactPreview(t *testing.T) {
	r := testRemote(t)
	msgCh, cancelMsg := r.Feed().Subscribe(CollectionMessages, 10)
	defer cancelMsg()
	ctCh, cancelCt := r.Feed().Subscribe(CollectionContacts, 10)
	defer cancelCt()

	stored, echoed, err := r.InsertMessage(context.Background(), store.Message{
		AccountID: 1, ToPhone: "+620001", FromPhone: "+628000",
		Direction: store.DirectionSent, Body: "hi", Timestamp: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if echoed.Phone != "+620001" {
		t.Errorf("echoed contact = %+v", echoed)
	}

	mc := recvChange(t, msgCh)
	if mc.Op != OpInsert || mc.Record.(store.Message).ID != stored.ID {
		t.Errorf("message change = %+v", mc)
	}

	cc := recvChange(t, ctCh)
	contact := cc.Record.(store.Contact)
	if contact.LastMessage != "hi" || contact.Phone != "+620001" {
		t.Errorf("contact change = %+v", contact)
	}
	if contact.UnreadCount != 0 {
		t.Errorf("unread bumped by locally-sent message: %d", contact.UnreadCount)
	}
}

func TestFeedCancelStopsDelivery(t *testing.T) {
	r := testRemote(t)
	ch, cancel := r.Feed().Subscribe(CollectionAccounts, 10)
	cancel()

	if _, err := r.InsertAccount(context.Background(), store.Account{Name: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch; ok {
		t.Error("event delivered after cancel")
	}
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	r := testRemote(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ListAccounts(ctx)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
