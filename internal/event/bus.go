// Package event provides the orchestrator's pub/sub event system using watermill.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/logging"
)

// Subscriber is a function that receives events.
type Subscriber func(event coretypes.Event)

// subscriberEntry wraps a subscriber with an ID and optional name (for logging).
type subscriberEntry struct {
	id   uint64
	name string
	fn   Subscriber
}

// Bus is the event bus that manages pub/sub using watermill.
// It uses watermill's gochannel for infrastructure while delivering
// synchronously and in-order within the publishing call, the contract
// every core component relies on.
type Bus struct {
	mu sync.RWMutex

	// Watermill pub/sub infrastructure for potential future middleware/routing.
	pubsub *gochannel.GoChannel

	// Direct subscriber tracking preserves type information and lets
	// Publish call handlers synchronously, in registration order.
	subscribers map[coretypes.SystemEvent][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context

	// onHandlerPanic, when set, is invoked instead of the default error log
	// when a subscriber handler panics. Neither NewBus nor NewFrontendBus
	// sets it, so both buses log the recovered panic and carry on.
	onHandlerPanic func(eventType coretypes.SystemEvent, subscriberName string, recovered any)

	// handlerLatencyWarning, when nonzero, logs a warning for any handler
	// that takes longer than this to run. Zero disables the check (the
	// main bus); the frontend bus sets this to catch UI-tick handlers
	// that would otherwise stall input.
	handlerLatencyWarning time.Duration
}

// frontendHandlerLatencyWarning is the threshold NewFrontendBus sets
// (spec.md §4.1/§5).
const frontendHandlerLatencyWarning = 5 * time.Millisecond

func newBus(handlerLatencyWarning time.Duration) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:           make(map[coretypes.SystemEvent][]subscriberEntry),
		closedCtx:             ctx,
		closedCancel:          cancel,
		handlerLatencyWarning: handlerLatencyWarning,
	}
}

// newID generates a unique subscriber ID.
func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type. name is used
// only for panic/slow-handler logging. Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType coretypes.SystemEvent, name string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, name: name, fn: fn}
	b.subscribers[eventType] = append(b.subscribers[eventType], entry)

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for every event type.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(name string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, name: name, fn: fn}
	b.global = append(b.global, entry)

	return func() {
		b.unsubscribeGlobal(id)
	}
}

func (b *Bus) unsubscribe(eventType coretypes.SystemEvent, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish delivers an event to its subscribers synchronously and in
// registration order. A handler panic is recovered and logged (via
// onHandlerPanic if set) so it never blocks later handlers.
func (b *Bus) Publish(eventType coretypes.SystemEvent, data map[string]any, source string) {
	b.PublishSync(eventType, data, source)
}

// PublishSync is an alias for Publish kept for call sites that want to be
// explicit that delivery is synchronous — on this bus it always is.
func (b *Bus) PublishSync(eventType coretypes.SystemEvent, data map[string]any, source string) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}

	subs := make([]subscriberEntry, 0, len(b.subscribers[eventType])+len(b.global))
	subs = append(subs, b.subscribers[eventType]...)
	subs = append(subs, b.global...)
	b.mu.RUnlock()

	evt := coretypes.Event{
		Type:      eventType,
		Data:      data,
		Source:    source,
		Timestamp: time.Now(),
	}

	for _, entry := range subs {
		b.dispatch(entry, evt)
	}
}

func (b *Bus) dispatch(entry subscriberEntry, evt coretypes.Event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			if b.onHandlerPanic != nil {
				b.onHandlerPanic(evt.Type, entry.name, r)
			} else {
				logging.Logger.Error().
					Str("event", string(evt.Type)).
					Str("subscriber", entry.name).
					Interface("panic", r).
					Msg("event handler panicked")
			}
		}
		if b.handlerLatencyWarning > 0 {
			if elapsed := time.Since(start); elapsed > b.handlerLatencyWarning {
				logging.Logger.Warn().
					Str("event", string(evt.Type)).
					Str("subscriber", entry.name).
					Dur("elapsed", elapsed).
					Msg("frontend bus handler exceeded latency budget")
			}
		}
	}()
	entry.fn(evt)
}

// NewBus creates a new, independent main event bus instance (spec.md
// §4.1). Each Core aggregate owns exactly one, rather than every
// component sharing a package-level singleton.
func NewBus() *Bus {
	return newBus(0)
}

// NewFrontendBus creates a bus dedicated to UI tick events, with the
// handler-latency warning the main bus doesn't need (spec.md §4.1/§5).
func NewFrontendBus() *Bus {
	return newBus(frontendHandlerLatencyWarning)
}

// Close closes the bus and all its subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()

	b.subscribers = make(map[coretypes.SystemEvent][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel for advanced use cases
// (middleware, routing, or a future distributed backend).
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
