// ABOUTME: In-process topic bus fanning lifecycle events out to subscribers
// ABOUTME: Publish is fire-and-forget; slow subscribers drop events rather than block actors

package event

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. Publish never
// blocks an actor loop: a subscriber that falls this far behind loses
// events and a warning is logged.
const subscriberBuffer = 64

// Publisher is the emission contract actors depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Recorder persists published events. Implemented by the store's audit
// sink; failures are logged, never propagated back to the publisher.
type Recorder interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// Bus is an in-process topic bus. Subscribers register interest in a set
// of event types (or all types) and receive matching events on a
// buffered channel.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	logger *slog.Logger
}

type subscriber struct {
	ch    chan Event
	types map[Type]struct{} // empty means all types
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]*subscriber),
		logger: logger.With("component", "eventbus"),
	}
}

// Subscribe registers interest in the given event types; no types means
// every event. The returned cancel function unregisters the subscriber
// and closes its channel.
func (b *Bus) Subscribe(types ...Type) (<-chan Event, func()) {
	sub := &subscriber{
		ch:    make(chan Event, subscriberBuffer),
		types: make(map[Type]struct{}, len(types)),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber without
// blocking. Events for full subscriber channels are dropped.
func (b *Bus) Publish(_ context.Context, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if len(sub.types) > 0 {
			if _, ok := sub.types[ev.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"event_id", ev.ID,
				"type", ev.Type,
				"subject", ev.Subject,
			)
		}
	}
}

// RunAudit consumes every published event and persists it through the
// recorder until ctx is cancelled. Record failures are logged and the
// sink keeps going; audit gaps are preferable to stalled actors.
func RunAudit(ctx context.Context, bus *Bus, rec Recorder, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit")

	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := rec.RecordEvent(ctx, ev); err != nil {
				logger.Error("recording event failed",
					"event_id", ev.ID,
					"type", ev.Type,
					"error", err,
				)
			}
		}
	}
}
