// Package session implements the Session Manager: the full lifecycle of
// General, Chatting, and Workflow sessions, cascading-end semantics, the
// timeout sweeper, and the append-only session record store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/logging"
)

// Sentinel errors mirroring spec.md §4.3's named failure modes.
var (
	ErrAlreadyActive = errors.New("session: already active")
	ErrNoParent      = errors.New("session: no active parent")
	ErrNotFound      = errors.New("session: not found")
)

func generateID() string {
	return ulid.Make().String()
}

// Manager owns every session's lifecycle and the record store.
type Manager struct {
	mu sync.Mutex

	sessions map[string]*coretypes.Session // by session id

	// generalSession is the single active GS, if any.
	generalSession string
	// chattingSession maps a GS id to its single active CS id, if any.
	chattingSession map[string]string
	// workflowSessions maps a GS id to its set of active WS ids.
	workflowSessions map[string]map[string]struct{}

	records *RecordStore

	maxSessionAge time.Duration

	bus *event.Bus

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
}

// New creates a Manager. maxSessionAge is the inactivity timeout after
// which a session is force-ended with reason "timeout". bus is the Core
// aggregate's event bus; the Manager publishes SESSION_STARTED/
// SESSION_ENDED on it rather than on a package-level singleton.
func New(records *RecordStore, maxSessionAge time.Duration, bus *event.Bus) *Manager {
	return &Manager{
		sessions:         make(map[string]*coretypes.Session),
		chattingSession:  make(map[string]string),
		workflowSessions: make(map[string]map[string]struct{}),
		records:          records,
		maxSessionAge:    maxSessionAge,
		bus:              bus,
	}
}

// StartTimeoutSweeper launches the fixed-schedule sweeper (spec.md §4.3:
// "every second") that ends sessions whose inactivity exceeds maxSessionAge.
// Call Stop to halt it.
func (m *Manager) StartTimeoutSweeper(ctx context.Context) {
	m.sweepTicker = time.NewTicker(1 * time.Second)
	m.sweepDone = make(chan struct{})

	go func() {
		defer close(m.sweepDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.sweepTicker.C:
				m.sweepTimedOut()
			}
		}
	}()
}

// Stop halts the timeout sweeper, if running.
func (m *Manager) Stop() {
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
		<-m.sweepDone
	}
}

func (m *Manager) sweepTimedOut() {
	now := time.Now()

	m.mu.Lock()
	var expired []*coretypes.Session
	for _, s := range m.sessions {
		if s.Status != coretypes.SessionActive {
			continue
		}
		if now.Sub(s.LastActive) > m.maxSessionAge {
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		switch s.Kind {
		case coretypes.GeneralSession:
			m.endGeneralSessionWithReason(s.ID, nil, coretypes.EndTimeout)
		case coretypes.ChattingSession:
			m.endChattingSessionWithReason(s.ID, false, coretypes.EndTimeout)
		case coretypes.WorkflowSession:
			m.endWorkflowSessionWithReason(s.ID, nil, coretypes.EndTimeout)
		}
		logging.Logger.Info().Str("session_id", s.ID).Str("kind", string(s.Kind)).Msg("session timed out")
	}
}

// touch bumps a session's last-activity timestamp.
func (m *Manager) touch(id string) {
	if s, ok := m.sessions[id]; ok {
		s.LastActive = time.Now()
	}
}

// --- General Session ---

// CreateGeneralSession creates the (singular) GS. Returns ErrAlreadyActive
// if a GS is already active.
func (m *Manager) CreateGeneralSession(initialMetadata map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generalSession != "" {
		if s, ok := m.sessions[m.generalSession]; ok && s.Status == coretypes.SessionActive {
			return "", ErrAlreadyActive
		}
	}

	now := time.Now()
	id := generateID()
	m.sessions[id] = &coretypes.Session{
		ID:         id,
		Kind:       coretypes.GeneralSession,
		Status:     coretypes.SessionActive,
		CreatedAt:  now,
		LastActive: now,
		Metadata:   initialMetadata,
	}
	m.generalSession = id
	m.workflowSessions[id] = make(map[string]struct{})

	m.recordTrigger(id, coretypes.GeneralSession, "", "")
	m.bus.Publish(coretypes.EventSessionStarted, map[string]any{
		"sessionID": id,
		"kind":      coretypes.GeneralSession,
	}, "session.Manager")

	return id, nil
}

// EndGeneralSession ends the GS, cascading to any active child CS/WS first
// with reason "parent_ended".
func (m *Manager) EndGeneralSession(id string, summary *coretypes.CompletionSummary) error {
	return m.endGeneralSessionWithReason(id, summary, coretypes.EndNormal)
}

func (m *Manager) endGeneralSessionWithReason(id string, summary *coretypes.CompletionSummary, reason coretypes.SessionEndReason) error {
	m.mu.Lock()
	gs, ok := m.sessions[id]
	if !ok || gs.Kind != coretypes.GeneralSession {
		m.mu.Unlock()
		return ErrNotFound
	}

	csID := m.chattingSession[id]
	var wsIDs []string
	for wsID := range m.workflowSessions[id] {
		wsIDs = append(wsIDs, wsID)
	}
	m.mu.Unlock()

	if csID != "" {
		_ = m.endChattingSessionWithReason(csID, false, coretypes.EndParentEnded)
	}
	for _, wsID := range wsIDs {
		_ = m.endWorkflowSessionWithReason(wsID, nil, coretypes.EndParentEnded)
	}

	m.mu.Lock()
	gs.Status = coretypes.SessionCompleted
	gs.EndReason = reason
	if m.generalSession == id {
		m.generalSession = ""
	}
	delete(m.workflowSessions, id)
	delete(m.chattingSession, id)
	m.mu.Unlock()

	m.recordCompletion(id, coretypes.GeneralSession, summary, reason)
	m.bus.Publish(coretypes.EventSessionEnded, map[string]any{
		"sessionID": id,
		"kind":      coretypes.GeneralSession,
		"reason":    reason,
	}, "session.Manager")

	return nil
}

// --- Chatting Session ---

// CreateChattingSession creates a CS under gsID. Fails with ErrNoParent if
// the GS does not exist or is not active; ErrAlreadyActive if a CS is
// already active under that GS.
func (m *Manager) CreateChattingSession(gsID string, identityContext map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gs, ok := m.sessions[gsID]
	if !ok || gs.Kind != coretypes.GeneralSession || gs.Status != coretypes.SessionActive {
		return "", ErrNoParent
	}
	if existing, ok := m.chattingSession[gsID]; ok && existing != "" {
		if s, ok := m.sessions[existing]; ok && s.Status == coretypes.SessionActive {
			return "", ErrAlreadyActive
		}
	}

	now := time.Now()
	id := generateID()
	m.sessions[id] = &coretypes.Session{
		ID:         id,
		Kind:       coretypes.ChattingSession,
		ParentID:   gsID,
		Status:     coretypes.SessionActive,
		CreatedAt:  now,
		LastActive: now,
		Metadata:   identityContext,
	}
	m.chattingSession[gsID] = id
	m.touch(gsID)

	m.recordTrigger(id, coretypes.ChattingSession, gsID, "")
	m.bus.Publish(coretypes.EventSessionStarted, map[string]any{
		"sessionID": id,
		"kind":      coretypes.ChattingSession,
		"parentID":  gsID,
	}, "session.Manager")

	return id, nil
}

// EndChattingSession ends a CS, optionally writing its memory snapshot
// (save_memory is the caller's signal to the memory store; the Manager
// itself only records and publishes the end).
func (m *Manager) EndChattingSession(id string, saveMemory bool) error {
	return m.endChattingSessionWithReason(id, saveMemory, coretypes.EndNormal)
}

// EndChattingSessionWithReason ends a CS recording an explicit end reason,
// for callers that must distinguish a normal close from e.g. "error" or
// "work_interrupt" (spec.md §4.7's error-path session termination).
func (m *Manager) EndChattingSessionWithReason(id string, saveMemory bool, reason coretypes.SessionEndReason) error {
	return m.endChattingSessionWithReason(id, saveMemory, reason)
}

func (m *Manager) endChattingSessionWithReason(id string, saveMemory bool, reason coretypes.SessionEndReason) error {
	m.mu.Lock()
	cs, ok := m.sessions[id]
	if !ok || cs.Kind != coretypes.ChattingSession {
		m.mu.Unlock()
		return ErrNotFound
	}
	cs.Status = coretypes.SessionCompleted
	cs.EndReason = reason
	if m.chattingSession[cs.ParentID] == id {
		delete(m.chattingSession, cs.ParentID)
	}
	m.mu.Unlock()

	m.recordCompletion(id, coretypes.ChattingSession, &coretypes.CompletionSummary{
		Success:    reason == coretypes.EndNormal,
		ResultData: map[string]any{"saveMemory": saveMemory},
	}, reason)

	m.bus.Publish(coretypes.EventSessionEnded, map[string]any{
		"sessionID": id,
		"kind":      coretypes.ChattingSession,
		"reason":    reason,
	}, "session.Manager")

	return nil
}

// --- Workflow Session ---

// CreateWorkflowSession creates a WS under gsID. Multiple concurrent WS per
// GS are allowed. taskType == SYSTEM_NOTIFICATION creates a WS that does
// not start a workflow engine.
func (m *Manager) CreateWorkflowSession(gsID string, taskType coretypes.TaskType, taskDefinition map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gs, ok := m.sessions[gsID]
	if !ok || gs.Kind != coretypes.GeneralSession || gs.Status != coretypes.SessionActive {
		return "", ErrNoParent
	}

	now := time.Now()
	id := generateID()
	metadata := map[string]any{"taskType": taskType, "taskDefinition": taskDefinition}
	m.sessions[id] = &coretypes.Session{
		ID:         id,
		Kind:       coretypes.WorkflowSession,
		ParentID:   gsID,
		Status:     coretypes.SessionActive,
		CreatedAt:  now,
		LastActive: now,
		Metadata:   metadata,
	}
	if m.workflowSessions[gsID] == nil {
		m.workflowSessions[gsID] = make(map[string]struct{})
	}
	m.workflowSessions[gsID][id] = struct{}{}
	m.touch(gsID)

	m.recordTrigger(id, coretypes.WorkflowSession, gsID, fmt.Sprintf("%v", taskType))
	m.bus.Publish(coretypes.EventSessionStarted, map[string]any{
		"sessionID": id,
		"kind":      coretypes.WorkflowSession,
		"parentID":  gsID,
		"taskType":  taskType,
	}, "session.Manager")

	return id, nil
}

// EndWorkflowSession ends a WS with the given result.
func (m *Manager) EndWorkflowSession(id string, result map[string]any) error {
	return m.endWorkflowSessionWithReason(id, result, coretypes.EndNormal)
}

// EndWorkflowSessionWithReason ends a WS recording an explicit end reason.
func (m *Manager) EndWorkflowSessionWithReason(id string, result map[string]any, reason coretypes.SessionEndReason) error {
	return m.endWorkflowSessionWithReason(id, result, reason)
}

func (m *Manager) endWorkflowSessionWithReason(id string, result map[string]any, reason coretypes.SessionEndReason) error {
	m.mu.Lock()
	ws, ok := m.sessions[id]
	if !ok || ws.Kind != coretypes.WorkflowSession {
		m.mu.Unlock()
		return ErrNotFound
	}
	ws.Status = coretypes.SessionCompleted
	ws.EndReason = reason
	if set, ok := m.workflowSessions[ws.ParentID]; ok {
		delete(set, id)
	}
	m.mu.Unlock()

	m.recordCompletion(id, coretypes.WorkflowSession, &coretypes.CompletionSummary{
		Success:    reason == coretypes.EndNormal,
		ResultData: result,
	}, reason)

	m.bus.Publish(coretypes.EventSessionEnded, map[string]any{
		"sessionID": id,
		"kind":      coretypes.WorkflowSession,
		"reason":    reason,
	}, "session.Manager")

	return nil
}

// --- lookups ---

func (m *Manager) Get(id string) (*coretypes.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// ActiveChattingSession returns the active CS id under gsID, if any.
func (m *Manager) ActiveChattingSession(gsID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chattingSession[gsID]
}

// ActiveGeneralSession returns the id of the active GS, if any.
func (m *Manager) ActiveGeneralSession() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generalSession
}

// Touch refreshes a session's last-activity timestamp (called by the
// Coordinator on every cycle that session participates in).
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(id)
}
