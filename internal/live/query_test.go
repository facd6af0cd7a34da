package live

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmelari/chatmirror/internal/bus"
)

func TestQueryDeliversInitialResult(t *testing.T) {
	b := bus.New()
	out, stop := Query(context.Background(), b, func() (int, error) { return 42, nil }, bus.KindStoreChats)
	defer stop()

	select {
	case v := <-out:
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial result")
	}
}

func TestQueryRerunsOnChange(t *testing.T) {
	b := bus.New()
	var n atomic.Int64
	out, stop := Query(context.Background(), b, func() (int64, error) {
		return n.Add(1), nil
	}, bus.KindStoreChats)
	defer stop()

	<-out // initial run

	b.Publish(bus.Event{Kind: bus.KindStoreChats, Payload: "g1"})

	select {
	case v := <-out:
		if v < 2 {
			t.Errorf("got %d, want a re-run result", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no re-run after change event")
	}
}

func TestQueryCoalescesBursts(t *testing.T) {
	b := bus.New()
	var runs atomic.Int64
	out, stop := Query(context.Background(), b, func() (int64, error) {
		return runs.Add(1), nil
	}, bus.KindStoreMessages)
	defer stop()

	<-out

	for i := 0; i < 20; i++ {
		b.Publish(bus.Event{Kind: bus.KindStoreMessages, Payload: "g1"})
	}

	// Let the burst settle, then drain.
	time.Sleep(300 * time.Millisecond)
	total := runs.Load()
	if total > 5 {
		t.Errorf("query ran %d times for one burst, want few", total)
	}
	if total < 2 {
		t.Error("query never re-ran after the burst")
	}
}

func TestQueryStopsOnCancel(t *testing.T) {
	b := bus.New()
	out, stop := Query(context.Background(), b, func() (int, error) { return 1, nil }, bus.KindStoreChats)

	<-out
	stop()

	// Channel closes once the worker exits.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("output channel never closed after stop")
		}
	}
}
