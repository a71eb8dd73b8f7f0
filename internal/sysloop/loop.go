package sysloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/uep-dev/uepd/internal/coordinator"
	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/logging"
	"github.com/uep-dev/uepd/internal/statemanager"
	"github.com/uep-dev/uepd/internal/statequeue"
	"github.com/uep-dev/uepd/internal/workingcontext"
)

// defaultIdleSleep is how long the loop rests after every tick, within
// spec.md §5's 10-50ms range.
const defaultIdleSleep = 25 * time.Millisecond

// ErrAlreadyRunning is returned by Start on a Loop already ticking.
var ErrAlreadyRunning = errors.New("sysloop: already running")

// Loop drives the State Queue and Module Coordinator on a single
// goroutine. The teacher's Processor tracks one loop per session behind
// a mutex-guarded map; the System Loop has exactly one instance for the
// whole process, so the same mutex-plus-cancel-plus-done-channel shape
// guards a single run instead of a map of them.
type Loop struct {
	mu sync.Mutex

	queue *statequeue.Queue
	state *statemanager.Manager
	wctx  *workingcontext.Context
	coord *coordinator.Coordinator
	bus   *event.Bus

	idleSleep time.Duration

	// lastRun is the queue item the most recent tick entered, so the same
	// current item is never run twice.
	lastRun *coretypes.QueueItem

	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a Loop wired to its collaborators. bus is the Core
// aggregate's event bus.
func New(queue *statequeue.Queue, state *statemanager.Manager, wctx *workingcontext.Context, coord *coordinator.Coordinator, bus *event.Bus) *Loop {
	return &Loop{
		queue:     queue,
		state:     state,
		wctx:      wctx,
		coord:     coord,
		bus:       bus,
		idleSleep: defaultIdleSleep,
	}
}

// SetIdleSleep overrides the between-tick rest duration, primarily for
// tests.
func (l *Loop) SetIdleSleep(d time.Duration) { l.idleSleep = d }

// Start launches the tick goroutine. It returns immediately; call Stop to
// halt it. ctx bounds the loop's lifetime independent of Stop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	done := l.done
	l.mu.Unlock()

	go l.run(loopCtx, done)
	return nil
}

// Stop requests a graceful halt and blocks until the in-flight tick (if
// any) returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	done := l.done
	l.running = false
	l.mu.Unlock()

	cancel()
	<-done
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.idleSleep):
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	// AddState promotes on its own when the queue is idle, so the current
	// item may have been promoted before this tick; it is run once either way.
	l.queue.CheckAndAdvanceState()
	item := l.queue.Current()
	if item == nil || item == l.lastRun {
		return
	}
	l.lastRun = item

	if err := l.enterState(item); err != nil {
		logging.Logger.Error().Err(err).Str("state", string(item.State)).Msg("sysloop: failed to enter promoted state")
		return
	}

	if item.State != coretypes.StateChat && item.State != coretypes.StateWork {
		// MISCHIEF/SLEEP/IDLE/ERROR are side-effect-only transitions the
		// State Manager already applied in enterState; the Coordinator
		// only bridges CHAT/WORK sessions to tool catalogues.
		return
	}

	result, err := l.coord.RunCycle(ctx, cycleInputFor(item))
	cycleIndex := l.wctx.IncrementCycleIndex()

	payload := map[string]any{
		"cycle_index": cycleIndex,
		"state":       string(item.State),
	}
	if err != nil {
		payload["error"] = err.Error()
	} else {
		payload["session_ended"] = result.SessionEnded
	}
	l.bus.Publish(coretypes.EventCycleCompleted, payload, "sysloop.Loop")
}

// enterState drives the State Manager into item's state, creating or
// reusing the session it needs.
func (l *Loop) enterState(item *coretypes.QueueItem) error {
	stateCtx := &statemanager.StateContext{
		Text:     item.TriggerContent,
		Metadata: item.Metadata,
	}
	if wfType, ok := item.Metadata["workflow_type"].(string); ok {
		stateCtx.WorkflowType = wfType
	}
	_, err := l.state.SetState(item.State, stateCtx)
	return err
}

// cycleInputFor turns a promoted queue item into the skip-input cycle
// input the Coordinator expects: the item's own content and a single
// synthetic segment standing in for the segmenter output that produced
// it (the Queue only kept the item's text and metadata, not the full
// IntentSegment that generated it).
func cycleInputFor(item *coretypes.QueueItem) coordinator.CycleInput {
	return coordinator.CycleInput{
		SkipInputLayer: true,
		Text:           item.TriggerContent,
		NLPResult: []coretypes.IntentSegment{{
			Text:     item.TriggerContent,
			Intent:   intentForState(item.State),
			Priority: item.Priority,
			Metadata: item.Metadata,
		}},
	}
}

func intentForState(state coretypes.CoreState) coretypes.IntentType {
	switch state {
	case coretypes.StateWork:
		return coretypes.IntentWork
	case coretypes.StateChat:
		return coretypes.IntentChat
	default:
		return coretypes.IntentUnknown
	}
}
