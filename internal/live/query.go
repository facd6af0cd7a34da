// Package live re-runs a store query whenever the rows under it change.
// It is an explicit subscription primitive: callers get a channel of
// fresh results plus a stop function, nothing is implicit.
package live

import (
	"context"
	"time"

	"github.com/dmelari/chatmirror/internal/bus"
)

// Query runs fn once immediately and again after every store-change event
// under any of the given bus namespaces. Bursts of change events within
// the coalesce window collapse into a single re-run. Results are dropped
// if the consumer is not keeping up; the next change re-delivers.
func Query[T any](ctx context.Context, b *bus.Bus, fn func() (T, error), namespaces ...string) (<-chan T, func()) {
	out := make(chan T, 1)
	ctx, cancel := context.WithCancel(ctx)

	subs := make([]<-chan bus.Event, 0, len(namespaces))
	unsubs := make([]func(), 0, len(namespaces))
	for _, ns := range namespaces {
		ch, unsub := b.Subscribe(ns, 64)
		subs = append(subs, ch)
		unsubs = append(unsubs, unsub)
	}

	changed := make(chan struct{}, 1)
	for _, ch := range subs {
		go func(ch <-chan bus.Event) {
			for {
				select {
				case <-ch:
					select {
					case changed <- struct{}{}:
					default:
					}
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	go func() {
		defer func() {
			for _, u := range unsubs {
				u()
			}
			close(out)
		}()

		deliver := func() {
			v, err := fn()
			if err != nil {
				return
			}
			select {
			case out <- v:
			default:
				// Stale result still queued; replace it.
				select {
				case <-out:
				default:
				}
				select {
				case out <- v:
				default:
				}
			}
		}

		deliver()
		const coalesce = 50 * time.Millisecond
		for {
			select {
			case <-changed:
				timer := time.NewTimer(coalesce)
			drain:
				for {
					select {
					case <-changed:
					case <-timer.C:
						break drain
					case <-ctx.Done():
						timer.Stop()
						return
					}
				}
				deliver()
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel
}
