package events

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 64

// LocalBus fans events out to subscribers inside a single process.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewLocalBus creates an in-process Bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subscribers: make(map[chan Event]struct{})}
}

// Publish delivers the event to every subscriber. A subscriber whose buffer is
// full misses the event rather than blocking the publisher.
func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			slog.WarnContext(ctx, "Dropping event for slow subscriber", "event.type", event.Type)
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}
