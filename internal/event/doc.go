/*
Package event provides the orchestrator's pub/sub event system.

Every core component talks to the others only through a Bus and through
internal/coretypes — direct struct references between the State Manager,
State Queue, and Session Manager would otherwise form a cycle.

# Architecture

The package is built on top of watermill's gochannel for infrastructure
while delivering synchronously and in registration order within the
publishing call. A handler panic is recovered and logged rather than
propagated, so one broken subscriber never blocks the rest.

# Event Types

The closed coretypes.SystemEvent enum: STATE_ADVANCED, STATE_CHANGED,
SESSION_STARTED, SESSION_ENDED, CYCLE_COMPLETED, INPUT_LAYER_COMPLETE,
PROCESSING_LAYER_COMPLETE, OUTPUT_LAYER_COMPLETE, LLM_RESPONSE_GENERATED,
MEMORY_CREATED, TTS_OUTPUT_GENERATED, WORKFLOW_STEP_COMPLETED,
WORKFLOW_FAILED, SLEEP_EXITED, WAKE_READY.

# Bus Instances

A Bus is a plain value with no package-level state: NewBus creates the
main bus a Core aggregate injects into every component that needs to
publish or subscribe. NewFrontendBus creates a second kind of instance
for UI tick events, whose handlers are expected to return within a 5ms
budget; a slow handler is logged as a warning rather than enforced as a
deadline. Nothing is shared between two Bus values unless a caller holds
onto the same pointer, which is what makes each Core's bus independent
of every other Core's (and every test's) bus.

# Basic Usage

	bus := event.NewBus()
	defer bus.Close()

	bus.Publish(coretypes.EventSessionStarted, map[string]any{
		"sessionID": sess.ID,
		"kind":      sess.Kind,
	}, "session.Manager")

Subscribing to a specific event type:

	unsubscribe := bus.Subscribe(coretypes.EventSessionStarted, "statequeue", func(e coretypes.Event) {
		log.Info().Interface("event", e).Msg("session started")
	})
	defer unsubscribe()

Subscribing to every event:

	unsubscribe := bus.SubscribeAll("debug-logger", func(e coretypes.Event) {
		log.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety

Handlers run synchronously in the publisher's goroutine. They must
complete quickly, and a handler that calls Publish on the same bus it
was invoked from will simply publish after the current dispatch loop
has released its read lock — fine occasionally, but a handler chain
that republishes on every event can still starve the goroutine it runs
on.

# Watermill Integration

	pubsub := bus.PubSub()
	// access the underlying GoChannel for middleware, routing, etc.

This keeps the door open to a distributed broker later without changing
the public API.
*/
package event
