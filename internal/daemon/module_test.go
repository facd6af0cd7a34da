package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/status"
)

func TestAwaitConnectingWaitsForTransport(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)

	go func() {
		time.Sleep(30 * time.Millisecond)
		if err := machine.Transition(status.Connecting); err != nil {
			t.Error(err)
		}
	}()

	awaitConnecting(context.Background(), machine, b)

	// Syncing is only reachable once the transport left Booting; waiting
	// first makes the transition valid regardless of start ordering.
	if err := machine.Transition(status.Syncing); err != nil {
		t.Errorf("transition to syncing after wait: %v", err)
	}
}

func TestAwaitConnectingReturnsImmediatelyWhenPastBooting(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)
	if err := machine.Transition(status.Connecting); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		awaitConnecting(context.Background(), machine, b)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("awaitConnecting blocked although machine left Booting")
	}
}

func TestAwaitConnectingHonorsCancel(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		awaitConnecting(ctx, machine, b)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("awaitConnecting ignored context cancel")
	}
}
