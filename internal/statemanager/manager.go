// Package statemanager implements the State Manager: the single
// authoritative current-state variable and the side-effect policy that
// turns a state transition into session creation, status-model mutation,
// and module lifecycle actions.
package statemanager

import (
	"context"
	"sync"
	"time"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/logging"
	"github.com/uep-dev/uepd/internal/session"
	"github.com/uep-dev/uepd/internal/statequeue"
	"github.com/uep-dev/uepd/internal/storage"
	"github.com/uep-dev/uepd/internal/workingcontext"
)

// sleepContextPath is where SLEEP persists the marker consulted at
// startup to recognise a resumed sleep (spec.md §6).
var sleepContextPath = []string{"memory", "sleep_context"}

// errMischiefDisabled is the sentinel enterMischief returns while the
// guard flag is off; SetState turns it into (false, nil), not an error.
var errMischiefDisabled = &guardError{"statemanager: MISCHIEF transition blocked by guard flag"}

type guardError struct{ msg string }

func (e *guardError) Error() string { return e.msg }

// StateContext carries the optional detail a set_state caller supplies.
// Its zero value behaves as "no context".
type StateContext struct {
	Text            string
	WorkflowType    string // e.g. "system_report"; default is workflow_automation.
	IdentityContext map[string]any
	Metadata        map[string]any
}

func (c *StateContext) isEmpty() bool {
	return c == nil
}

// SleepHooks are the module-lifecycle callbacks SLEEP/WAKE drive. Both
// are optional; a nil hook is a no-op.
type SleepHooks struct {
	Unload func() error
	Reload func() error
}

// Manager owns the authoritative current_state variable.
type Manager struct {
	mu sync.Mutex

	sessions *session.Manager
	queue    *statequeue.Queue
	wctx     *workingcontext.Context
	store    *storage.Storage
	status   *Status
	bus      *event.Bus

	mischiefEnabled bool
	hooks           SleepHooks

	currentState     coretypes.CoreState
	currentSessionID string

	unsubSessionEnded func()
	unsubStatus       func()

	lastDebounce time.Time
	debounceGap  time.Duration

	sleepBoredomThreshold    float64
	mischiefBoredomThreshold float64
	mischiefMoodThreshold    float64
}

// New creates a State Manager wired to the given collaborators. bus is
// the Core aggregate's event bus; mischiefEnabled mirrors spec.md §4.5's
// guard flag (a config option in this port, see DESIGN.md's Open
// Question decision).
func New(sessions *session.Manager, queue *statequeue.Queue, wctx *workingcontext.Context, store *storage.Storage, mischiefEnabled bool, bus *event.Bus) *Manager {
	m := &Manager{
		sessions:                 sessions,
		queue:                    queue,
		wctx:                     wctx,
		store:                    store,
		status:                   NewStatus(),
		bus:                      bus,
		mischiefEnabled:          mischiefEnabled,
		currentState:             coretypes.StateIdle,
		debounceGap:              2 * time.Second,
		sleepBoredomThreshold:    DefaultSleepBoredomThreshold,
		mischiefBoredomThreshold: DefaultMischiefBoredomThreshold,
		mischiefMoodThreshold:    DefaultMischiefMoodThreshold,
	}
	m.unsubSessionEnded = bus.Subscribe(coretypes.EventSessionEnded, "statemanager.Manager", m.onSessionEnded)
	m.unsubStatus = bus.Subscribe(coretypes.EventStatusUpdated, "statemanager.Manager", m.onStatusUpdated)
	return m
}

// SetSleepHooks installs the module unload/reload callbacks SLEEP/WAKE
// drive.
func (m *Manager) SetSleepHooks(hooks SleepHooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = hooks
}

// Status returns the shared status model.
func (m *Manager) Status() *Status { return m.status }

// CurrentState returns the authoritative current state.
func (m *Manager) CurrentState() coretypes.CoreState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentState
}

// CurrentSessionID returns the CS or WS id driving the current state, if
// any. Empty outside CHAT/WORK.
func (m *Manager) CurrentSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSessionID
}

// Close unsubscribes from the Event Bus.
func (m *Manager) Close() {
	if m.unsubSessionEnded != nil {
		m.unsubSessionEnded()
	}
	if m.unsubStatus != nil {
		m.unsubStatus()
	}
}

// SetState is the state-change entry point. If newState equals the
// current state and ctx is nil, it is a no-op returning true.
func (m *Manager) SetState(newState coretypes.CoreState, ctx *StateContext) (bool, error) {
	m.mu.Lock()
	if newState == m.currentState && ctx.isEmpty() {
		m.mu.Unlock()
		return true, nil
	}
	old := m.currentState
	m.mu.Unlock()

	var err error
	switch newState {
	case coretypes.StateChat:
		err = m.enterChat(ctx)
	case coretypes.StateWork:
		err = m.enterWork(ctx)
	case coretypes.StateIdle:
		m.clearCurrentSession()
	case coretypes.StateMischief:
		err = m.enterMischief(ctx)
	case coretypes.StateSleep:
		err = m.enterSleep(ctx)
	default:
		m.clearCurrentSession()
	}
	if err == errMischiefDisabled {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.currentState = newState
	m.mu.Unlock()

	m.bus.Publish(coretypes.EventStateChanged, map[string]any{
		"old_state": string(old),
		"new_state": string(newState),
	}, "statemanager.Manager")

	return true, nil
}

func (m *Manager) clearCurrentSession() {
	m.mu.Lock()
	m.currentSessionID = ""
	m.mu.Unlock()
}

func (m *Manager) ensureGeneralSession() (string, error) {
	gsID := m.sessions.ActiveGeneralSession()
	if gsID != "" {
		return gsID, nil
	}
	return m.sessions.CreateGeneralSession(nil)
}

func (m *Manager) enterChat(ctx *StateContext) error {
	gsID, err := m.ensureGeneralSession()
	if err != nil {
		return err
	}

	identityCtx := map[string]any{}
	if ctx != nil && ctx.IdentityContext != nil {
		identityCtx = ctx.IdentityContext
	} else if id := m.wctx.CurrentIdentity(); id != nil {
		identityCtx = map[string]any{"identity": id}
	}

	csID, err := m.sessions.CreateChattingSession(gsID, identityCtx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.currentSessionID = csID
	m.mu.Unlock()
	return nil
}

func (m *Manager) enterWork(ctx *StateContext) error {
	gsID, err := m.ensureGeneralSession()
	if err != nil {
		return err
	}

	workflowType := "workflow_automation"
	var text string
	if ctx != nil {
		if ctx.WorkflowType != "" {
			workflowType = ctx.WorkflowType
		}
		text = ctx.Text
	}

	taskType := coretypes.TaskWorkflowAutomation
	if workflowType == "system_report" {
		taskType = coretypes.TaskSystemNotification
	}

	taskDefinition := map[string]any{
		"command":       text,
		"workflow_type": workflowType,
	}
	wsID, err := m.sessions.CreateWorkflowSession(gsID, taskType, taskDefinition)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.currentSessionID = wsID
	m.mu.Unlock()

	if workflowType == "system_report" {
		// Fast-path: synthesize input-layer completion so the Coordinator
		// skips straight to the processing layer with this content.
		m.bus.Publish(coretypes.EventInputLayerComplete, map[string]any{
			"sessionID": wsID,
			"content":   text,
			"synthetic": true,
		}, "statemanager.Manager")
	}
	return nil
}

func (m *Manager) enterMischief(ctx *StateContext) error {
	m.mu.Lock()
	enabled := m.mischiefEnabled
	m.mu.Unlock()
	if !enabled {
		logging.Logger.Warn().Msg("statemanager: MISCHIEF transition requested but disabled by guard flag")
		return errMischiefDisabled
	}

	m.clearCurrentSession()
	m.status.SuppressHelpfulness()

	m.bus.Publish(coretypes.EventStateAdvanced, map[string]any{
		"old_state": string(coretypes.StateIdle),
		"new_state": string(coretypes.StateMischief),
		"content":   "",
		"trigger":   "mischief_debounce",
	}, "statemanager.Manager")
	return nil
}

func (m *Manager) enterSleep(ctx *StateContext) error {
	m.clearCurrentSession()

	m.mu.Lock()
	hooks := m.hooks
	m.mu.Unlock()
	if hooks.Unload != nil {
		if err := hooks.Unload(); err != nil {
			logging.Logger.Error().Err(err).Msg("statemanager: module unload failed entering SLEEP")
		}
	}

	sleepCtx := map[string]any{"entered_at": time.Now()}
	if ctx != nil {
		sleepCtx["metadata"] = ctx.Metadata
	}
	if m.store != nil {
		if err := m.store.Put(context.Background(), sleepContextPath, sleepCtx); err != nil {
			logging.Logger.Error().Err(err).Msg("statemanager: failed to persist sleep context")
		}
	}
	return nil
}

// ExitSpecialState restores suppressed status values and transitions back
// to IDLE. If the prior state was SLEEP, removes the sleep context marker
// and runs the reload hook, then publishes WAKE_READY once done.
func (m *Manager) ExitSpecialState(reason string) error {
	m.mu.Lock()
	prior := m.currentState
	hooks := m.hooks
	m.mu.Unlock()

	m.status.RestoreHelpfulness()

	if prior == coretypes.StateSleep {
		if m.store != nil {
			_ = m.store.Delete(context.Background(), sleepContextPath)
		}
		if hooks.Reload != nil {
			if err := hooks.Reload(); err != nil {
				return err
			}
		}
		m.bus.Publish(coretypes.EventWakeReady, map[string]any{"reason": reason}, "statemanager.Manager")
	}
	if prior == coretypes.StateSleep || prior == coretypes.StateMischief {
		m.bus.Publish(coretypes.EventSleepExited, map[string]any{
			"from_state": string(prior),
			"reason":     reason,
		}, "statemanager.Manager")
	}

	_, err := m.SetState(coretypes.StateIdle, nil)
	return err
}

// onSessionEnded forwards CS/WS completions to the State Queue. GS
// endings do not advance the queue — they only bubble up through the
// record store (already handled by session.Manager itself).
func (m *Manager) onSessionEnded(e coretypes.Event) {
	kindRaw, _ := e.Data["kind"]
	kind, _ := kindRaw.(coretypes.SessionKind)
	if kind != coretypes.ChattingSession && kind != coretypes.WorkflowSession {
		return
	}

	m.mu.Lock()
	isCurrent := e.Data["sessionID"] == m.currentSessionID
	m.mu.Unlock()
	if !isCurrent {
		return
	}

	reason, _ := e.Data["reason"].(coretypes.SessionEndReason)
	success := reason == coretypes.EndNormal
	m.queue.CompleteCurrentState(success, map[string]any{"reason": reason}, nil)
}

// onStatusUpdated runs the debounced special-state entry check: high
// boredom alone promotes SLEEP; boredom combined with low mood promotes
// MISCHIEF. A short debounce window prevents oscillation between checks.
func (m *Manager) onStatusUpdated(e coretypes.Event) {
	m.mu.Lock()
	now := time.Now()
	if now.Sub(m.lastDebounce) < m.debounceGap {
		m.mu.Unlock()
		return
	}
	m.lastDebounce = now
	current := m.currentState
	m.mu.Unlock()

	if current != coretypes.StateIdle && current != coretypes.StateChat {
		return
	}

	snap := m.status.Snapshot()
	switch {
	case snap.Boredom >= m.sleepBoredomThreshold:
		_, _ = m.SetState(coretypes.StateSleep, nil)
	case snap.Boredom >= m.mischiefBoredomThreshold && snap.Mood <= m.mischiefMoodThreshold:
		_, _ = m.SetState(coretypes.StateMischief, nil)
	}
}
