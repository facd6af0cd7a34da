package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribePrefix(t *testing.T) {
	b := New()

	pushCh, unsubPush := b.Subscribe("push.", 10)
	defer unsubPush()
	allCh, unsubAll := b.Subscribe("", 10)
	defer unsubAll()

	b.Publish(Event{Kind: KindPushMessage})
	b.Publish(Event{Kind: KindStoreChats})

	select {
	case evt := <-pushCh:
		if evt.Kind != KindPushMessage {
			t.Errorf("kind = %q, want %q", evt.Kind, KindPushMessage)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for push event")
	}

	// The push subscriber must not see the store event.
	select {
	case evt := <-pushCh:
		t.Errorf("unexpected event %q on push subscriber", evt.Kind)
	default:
	}

	// The catch-all subscriber sees both.
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d on catch-all subscriber", i)
		}
	}
}

func TestPublishFillsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: KindSyncPage})
	evt := <-ch
	if evt.Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: KindSyncPage})
	b.Publish(Event{Kind: KindSyncPage})

	if b.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", b.Dropped())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	unsub()

	b.Publish(Event{Kind: KindSyncPage})

	select {
	case evt := <-ch:
		t.Errorf("received %q after unsubscribe", evt.Kind)
	default:
	}
}
