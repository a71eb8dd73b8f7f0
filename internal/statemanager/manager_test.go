package statemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/session"
	"github.com/uep-dev/uepd/internal/statequeue"
	"github.com/uep-dev/uepd/internal/storage"
	"github.com/uep-dev/uepd/internal/workingcontext"
)

func newTestManager(t *testing.T, mischiefEnabled bool) (*Manager, *session.Manager, *statequeue.Queue) {
	m, sessions, queue, _ := newTestManagerWithBus(t, mischiefEnabled)
	return m, sessions, queue
}

func newTestManagerWithBus(t *testing.T, mischiefEnabled bool) (*Manager, *session.Manager, *statequeue.Queue, *event.Bus) {
	t.Helper()

	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	store := storage.New(t.TempDir())
	records := session.NewRecordStore(store, []string{"memory", "session_records"})
	sessions := session.New(records, 5*time.Second, bus)
	wctx := workingcontext.New()
	queue := statequeue.New(store, []string{"memory", "state_queue"}, wctx, bus)

	m := New(sessions, queue, wctx, store, mischiefEnabled, bus)
	t.Cleanup(m.Close)

	return m, sessions, queue, bus
}

func TestSetState_NoopWhenSameStateAndNoContext(t *testing.T) {
	m, _, _ := newTestManager(t, false)
	ok, err := m.SetState(coretypes.StateIdle, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, coretypes.StateIdle, m.CurrentState())
}

func TestSetState_Chat_CreatesGeneralAndChattingSession(t *testing.T) {
	m, sessions, _ := newTestManager(t, false)

	ok, err := m.SetState(coretypes.StateChat, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, coretypes.StateChat, m.CurrentState())

	gsID := sessions.ActiveGeneralSession()
	require.NotEmpty(t, gsID)
	csID := sessions.ActiveChattingSession(gsID)
	require.NotEmpty(t, csID)
}

func TestSetState_Chat_ReusesExistingGeneralSession(t *testing.T) {
	m, sessions, _ := newTestManager(t, false)
	_, err := sessions.CreateGeneralSession(nil)
	require.NoError(t, err)
	existing := sessions.ActiveGeneralSession()

	_, err = m.SetState(coretypes.StateChat, nil)
	require.NoError(t, err)
	assert.Equal(t, existing, sessions.ActiveGeneralSession())
}

func TestSetState_Work_CreatesWorkflowSession(t *testing.T) {
	m, sessions, _ := newTestManager(t, false)

	_, err := m.SetState(coretypes.StateWork, &StateContext{Text: "do the thing"})
	require.NoError(t, err)

	gsID := sessions.ActiveGeneralSession()
	require.NotEmpty(t, gsID)
}

func TestSetState_Work_SystemReportFastPathsInputLayer(t *testing.T) {
	m, _, _, bus := newTestManagerWithBus(t, false)

	var got coretypes.Event
	bus.Subscribe(coretypes.EventInputLayerComplete, "test", func(e coretypes.Event) {
		got = e
	})

	_, err := m.SetState(coretypes.StateWork, &StateContext{Text: "status please", WorkflowType: "system_report"})
	require.NoError(t, err)

	assert.Equal(t, coretypes.EventInputLayerComplete, got.Type)
	assert.Equal(t, true, got.Data["synthetic"])
}

func TestSetState_Idle_ClearsCurrentSession(t *testing.T) {
	m, _, _ := newTestManager(t, false)
	_, err := m.SetState(coretypes.StateChat, nil)
	require.NoError(t, err)

	_, err = m.SetState(coretypes.StateIdle, nil)
	require.NoError(t, err)
	assert.Empty(t, m.currentSessionID)
}

func TestSetState_Mischief_DisabledByGuardFlagIsNoop(t *testing.T) {
	m, _, _ := newTestManager(t, false)
	ok, err := m.SetState(coretypes.StateMischief, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, coretypes.StateIdle, m.CurrentState(), "disabled mischief must not change current state")
	snap := m.Status().Snapshot()
	assert.NotEqual(t, 0.0, snap.Helpfulness, "disabled mischief must not suppress helpfulness")
}

func TestSetState_Mischief_EnabledSuppressesHelpfulness(t *testing.T) {
	m, _, _ := newTestManager(t, true)
	_, err := m.SetState(coretypes.StateMischief, nil)
	require.NoError(t, err)
	snap := m.Status().Snapshot()
	assert.Equal(t, 0.0, snap.Helpfulness)
}

func TestSetState_Sleep_RunsUnloadHookAndPersistsMarker(t *testing.T) {
	m, _, _ := newTestManager(t, false)
	unloaded := false
	m.SetSleepHooks(SleepHooks{Unload: func() error { unloaded = true; return nil }})

	_, err := m.SetState(coretypes.StateSleep, nil)
	require.NoError(t, err)
	assert.True(t, unloaded)
	assert.True(t, m.store.Exists(context.Background(), sleepContextPath))
}

func TestExitSpecialState_FromSleep_RunsReloadAndRemovesMarker(t *testing.T) {
	m, _, _, bus := newTestManagerWithBus(t, false)
	reloaded := false
	m.SetSleepHooks(SleepHooks{Reload: func() error { reloaded = true; return nil }})

	_, err := m.SetState(coretypes.StateSleep, nil)
	require.NoError(t, err)

	var wakeReady bool
	bus.Subscribe(coretypes.EventWakeReady, "test", func(e coretypes.Event) { wakeReady = true })

	require.NoError(t, m.ExitSpecialState("wake_call"))
	assert.True(t, reloaded)
	assert.True(t, wakeReady)
	assert.False(t, m.store.Exists(context.Background(), sleepContextPath))
	assert.Equal(t, coretypes.StateIdle, m.CurrentState())
}

func TestExitSpecialState_RestoresSuppressedHelpfulness(t *testing.T) {
	m, _, _ := newTestManager(t, true)
	before := m.Status().Snapshot().Helpfulness

	_, err := m.SetState(coretypes.StateMischief, nil)
	require.NoError(t, err)
	require.NoError(t, m.ExitSpecialState("calmed_down"))

	assert.Equal(t, before, m.Status().Snapshot().Helpfulness)
}

func TestOnSessionEnded_ForwardsChattingCompletionToQueue(t *testing.T) {
	m, sessions, queue := newTestManager(t, false)

	_, err := m.SetState(coretypes.StateChat, nil)
	require.NoError(t, err)

	gsID := sessions.ActiveGeneralSession()
	csID := sessions.ActiveChattingSession(gsID)
	m.currentSessionID = csID

	queue.AddState(coretypes.StateChat, "x", "x", coretypes.WorkModeNone, nil, nil)
	require.NotNil(t, queue.Current())

	require.NoError(t, sessions.EndChattingSession(csID, false))

	assert.Nil(t, queue.Current(), "a SESSION_ENDED for the current session must clear the queue's current item")
}

func TestOnSessionEnded_IgnoresGeneralSessionEndings(t *testing.T) {
	m, sessions, queue := newTestManager(t, false)
	gsID, err := sessions.CreateGeneralSession(nil)
	require.NoError(t, err)
	m.currentSessionID = gsID

	queue.AddState(coretypes.StateChat, "x", "x", coretypes.WorkModeNone, nil, nil)
	before := queue.Current()

	require.NoError(t, sessions.EndGeneralSession(gsID, nil))
	assert.Equal(t, before, queue.Current(), "GS endings must not advance the queue")
}
