package bus

import (
	"testing"
	"time"
)

func TestPublishMatchesNamespacePrefix(t *testing.T) {
	b := New()
	acct, cancelAcct := b.Subscribe("account.", 10)
	defer cancelAcct()
	msg, cancelMsg := b.Subscribe("message.", 10)
	defer cancelMsg()

	b.Publish(Event{Kind: "account.linked", Payload: int64(1)})

	select {
	case evt := <-acct:
		if evt.Kind != "account.linked" {
			t.Errorf("kind = %q, want account.linked", evt.Kind)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not defaulted")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for account.linked")
	}

	select {
	case evt := <-msg:
		t.Errorf("message subscriber received %q", evt.Kind)
	default:
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("sync.", 10)
	cancel()

	b.Publish(Event{Kind: "sync.paused"})

	// Channel is closed after cancel and carries nothing.
	if evt, ok := <-ch; ok {
		t.Errorf("received %q after cancel", evt.Kind)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe("a.", 1)
	cancel()
	cancel()
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("x.", 1)
	defer cancel()

	b.Publish(Event{Kind: "x.one"})
	b.Publish(Event{Kind: "x.two"}) // dropped, buffer full

	evt := <-ch
	if evt.Kind != "x.one" {
		t.Errorf("kind = %q, want x.one", evt.Kind)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %q", evt.Kind)
	default:
	}
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("a.", 1)
	defer cancel()

	b.Close()

	if _, ok := <-ch; ok {
		t.Error("channel not closed after bus close")
	}

	// Subscribing after close yields a closed channel.
	ch2, _ := b.Subscribe("b.", 1)
	if _, ok := <-ch2; ok {
		t.Error("subscribe after close returned open channel")
	}
}
