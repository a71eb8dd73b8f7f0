// Package statequeue implements the State Queue: a priority-ordered ring
// of pending states awaiting promotion to "current", persisted to durable
// storage after every mutation. Grounded on the teacher's
// internal/session/todo.go (storage-get/put keyed by path, event.Publish
// on mutation) generalized from a flat todo list to a priority heap.
package statequeue

import (
	"context"
	"sync"
	"time"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/logging"
	"github.com/uep-dev/uepd/internal/storage"
	"github.com/uep-dev/uepd/internal/workingcontext"
)

// DefaultPriority is the base priority per state, per spec.md §4.4.
var DefaultPriority = map[coretypes.CoreState]int{
	coretypes.StateWork:     100,
	coretypes.StateChat:     50,
	coretypes.StateMischief: 30,
	coretypes.StateSleep:    10,
	coretypes.StateError:    5,
	coretypes.StateIdle:     0,
}

// interruptPriority is the fixed priority an interrupt-inserted WORK item
// receives, bypassing the normal priority sort via head-insertion.
const interruptPriority = 200

// minDirectPriority and maxBackgroundPriority implement the work_mode
// priority-coercion rule: direct work is pulled up to at least 100,
// background work is clamped down to at most 30.
const (
	minDirectPriority     = 100
	maxBackgroundPriority = 30
)

// queueFile is the exact on-disk shape persisted under
// memory/state_queue.json (spec.md §6).
type queueFile struct {
	CurrentState string               `json:"current_state"`
	CurrentItem  *coretypes.QueueItem `json:"current_item,omitempty"`
	Queue        []*coretypes.QueueItem `json:"queue"`
	SavedAt      time.Time            `json:"saved_at"`
}

// Queue is the priority state queue. It never enqueues IDLE: IDLE is the
// ambient state when the queue is empty and no item is executing.
type Queue struct {
	mu sync.Mutex

	store *storage.Storage
	path  []string
	wctx  *workingcontext.Context
	bus   *event.Bus

	currentState coretypes.CoreState
	current      *coretypes.QueueItem
	pending      []*coretypes.QueueItem
}

// New creates a Queue persisted via store at path (typically
// []string{"memory", "state_queue"}). wctx supplies the cycle index
// STATE_ADVANCED carries; bus is the Core aggregate's event bus.
func New(store *storage.Storage, path []string, wctx *workingcontext.Context, bus *event.Bus) *Queue {
	return &Queue{
		store:        store,
		path:         path,
		wctx:         wctx,
		bus:          bus,
		currentState: coretypes.StateIdle,
	}
}

// Load restores persisted queue state, if any.
func (q *Queue) Load(ctx context.Context) error {
	var file queueFile
	if err := q.store.Get(ctx, q.path, &file); err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if file.CurrentState != "" {
		q.currentState = coretypes.CoreState(file.CurrentState)
	}
	q.current = file.CurrentItem
	q.pending = file.Queue
	return nil
}

func (q *Queue) save(ctx context.Context) {
	file := queueFile{
		CurrentState: string(q.currentState),
		CurrentItem:  q.current,
		Queue:        q.pending,
		SavedAt:      time.Now(),
	}
	if err := q.store.Put(ctx, q.path, file); err != nil {
		logging.Logger.Error().Err(err).Msg("state queue: failed to persist")
	}
}

// resolvePriority applies the work_mode coercion rule and custom-priority
// override on top of the state's default priority.
func resolvePriority(state coretypes.CoreState, mode coretypes.WorkMode, customPriority *int) int {
	if customPriority != nil {
		return *customPriority
	}
	p := DefaultPriority[state]
	switch mode {
	case coretypes.WorkModeDirect:
		if p < minDirectPriority {
			p = minDirectPriority
		}
	case coretypes.WorkModeBackground:
		if p > maxBackgroundPriority {
			p = maxBackgroundPriority
		}
	}
	return p
}

// AddState enqueues a new item per the priority rules. If the queue is
// idle with no current item, the newly added item (or the highest-priority
// pending item, which may not be the one just added) is immediately
// promoted. Returns false if state is IDLE, which may never be enqueued.
func (q *Queue) AddState(state coretypes.CoreState, triggerContent, contextContent string, mode coretypes.WorkMode, metadata map[string]any, customPriority *int) bool {
	if state == coretypes.StateIdle {
		return false
	}

	item := &coretypes.QueueItem{
		State:          state,
		TriggerContent: triggerContent,
		ContextContent: contextContent,
		Priority:       resolvePriority(state, mode, customPriority),
		WorkMode:       mode,
		Metadata:       metadata,
		CreatedAt:      time.Now(),
	}

	q.mu.Lock()
	q.insertSorted(item)
	shouldPromote := q.currentState == coretypes.StateIdle && q.current == nil
	q.mu.Unlock()

	if shouldPromote {
		q.CheckAndAdvanceState()
	} else {
		q.save(context.Background())
	}
	return true
}

// insertSorted inserts item keeping q.pending sorted by priority
// descending, ties broken by insertion order (FIFO, i.e. stable).
func (q *Queue) insertSorted(item *coretypes.QueueItem) {
	i := len(q.pending)
	for i > 0 && q.pending[i-1].Priority < item.Priority {
		i--
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = item
}

// ProcessNLPIntents translates segmenter output into queued states.
// CALL and UNKNOWN segments are dropped (they carry no actionable
// content); RESPONSE segments are enqueued as direct WORK so a pending
// reply is dispatched ahead of ambient chat; degradation markers the
// segmenter attached to metadata are preserved verbatim.
func (q *Queue) ProcessNLPIntents(segments []coretypes.IntentSegment) int {
	enqueued := 0
	for _, seg := range segments {
		switch seg.Intent {
		case coretypes.IntentCall, coretypes.IntentUnknown:
			continue
		case coretypes.IntentResponse:
			if q.AddState(coretypes.StateWork, seg.Text, seg.Text, coretypes.WorkModeDirect, seg.Metadata, nil) {
				enqueued++
			}
		case coretypes.IntentChat:
			if q.AddState(coretypes.StateChat, seg.Text, seg.Text, coretypes.WorkModeNone, seg.Metadata, nil) {
				enqueued++
			}
		case coretypes.IntentWork:
			mode := coretypes.WorkModeNone
			if raw, ok := seg.Metadata["work_mode"]; ok {
				if s, ok := raw.(coretypes.WorkMode); ok {
					mode = s
				} else if s, ok := raw.(string); ok {
					mode = coretypes.WorkMode(s)
				}
			}
			if q.AddState(coretypes.StateWork, seg.Text, seg.Text, mode, seg.Metadata, nil) {
				enqueued++
			}
		}
	}
	return enqueued
}

// CheckAndAdvanceState promotes the highest-priority pending item to
// current, publishing STATE_ADVANCED, and returns true if a promotion
// happened. If the queue empties out (no pending item to promote and no
// current item), the current state falls back to IDLE.
func (q *Queue) CheckAndAdvanceState() bool {
	q.mu.Lock()
	if q.current != nil {
		q.mu.Unlock()
		return false
	}
	if len(q.pending) == 0 {
		q.currentState = coretypes.StateIdle
		q.mu.Unlock()
		q.save(context.Background())
		return false
	}

	item := q.pending[0]
	q.pending = q.pending[1:]
	item.StartedAt = time.Now()
	q.current = item
	q.currentState = item.State
	q.mu.Unlock()

	cycleIndex := 0
	if q.wctx != nil {
		cycleIndex = q.wctx.CurrentCycleIndex()
	}

	q.bus.Publish(coretypes.EventStateAdvanced, map[string]any{
		"old_state":   string(coretypes.StateIdle),
		"new_state":   string(item.State),
		"content":     item.ContextContent,
		"trigger":     item.TriggerContent,
		"metadata":    item.Metadata,
		"cycle_index": cycleIndex,
	}, "statequeue.Queue")

	q.save(context.Background())
	return true
}

// CompleteCurrentState marks the currently-executing item complete and
// clears it. It does not auto-promote the next item; the System Loop
// calls CheckAndAdvanceState on its next tick. Invoked on SESSION_ENDED.
func (q *Queue) CompleteCurrentState(success bool, resultData map[string]any, completionCycle *int) {
	q.mu.Lock()
	if q.current == nil {
		q.mu.Unlock()
		return
	}
	q.current.CompletedAt = time.Now()
	if q.current.Metadata == nil {
		q.current.Metadata = make(map[string]any)
	}
	q.current.Metadata["success"] = success
	q.current.Metadata["resultData"] = resultData
	if completionCycle != nil {
		q.current.Metadata["completionCycle"] = *completionCycle
	}
	q.current = nil
	q.currentState = coretypes.StateIdle
	q.mu.Unlock()

	q.save(context.Background())
}

// InterruptChatForWork inserts a WORK item at the head of the queue with
// a fixed priority of 200, bypassing the normal priority sort entirely.
// Used when a command must preempt an active chat without waiting its
// turn in line.
func (q *Queue) InterruptChatForWork(commandText, triggerUser string, metadata map[string]any) {
	item := &coretypes.QueueItem{
		State:          coretypes.StateWork,
		TriggerContent: commandText,
		ContextContent: commandText,
		TriggerUser:    triggerUser,
		Priority:       interruptPriority,
		WorkMode:       coretypes.WorkModeDirect,
		Metadata:       metadata,
		CreatedAt:      time.Now(),
	}

	q.mu.Lock()
	q.pending = append([]*coretypes.QueueItem{item}, q.pending...)
	shouldPromote := q.current == nil
	q.mu.Unlock()

	if shouldPromote {
		q.CheckAndAdvanceState()
	} else {
		q.save(context.Background())
	}
}

// CurrentState returns the authoritative current state.
func (q *Queue) CurrentState() coretypes.CoreState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentState
}

// Current returns the currently-executing item, if any.
func (q *Queue) Current() *coretypes.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Pending returns a snapshot of the pending queue, highest priority first.
func (q *Queue) Pending() []*coretypes.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*coretypes.QueueItem, len(q.pending))
	copy(out, q.pending)
	return out
}

// Len returns the number of pending items, not counting the current item.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
