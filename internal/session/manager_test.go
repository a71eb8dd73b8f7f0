package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := storage.New(t.TempDir())
	records := NewRecordStore(store, []string{"memory", "session_records"})
	return New(records, 5*time.Second, event.NewBus())
}

func TestCreateGeneralSession_Succeeds(t *testing.T) {
	m := newTestManager(t)
	id, err := m.CreateGeneralSession(map[string]any{"source": "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, coretypes.GeneralSession, s.Kind)
	assert.Equal(t, coretypes.SessionActive, s.Status)
}

func TestCreateGeneralSession_AlreadyActive(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateGeneralSession(nil)
	require.NoError(t, err)

	_, err = m.CreateGeneralSession(nil)
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestCreateChattingSession_NoParent(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateChattingSession("nonexistent", nil)
	assert.ErrorIs(t, err, ErrNoParent)
}

func TestCreateChattingSession_AlreadyActive(t *testing.T) {
	m := newTestManager(t)
	gsID, err := m.CreateGeneralSession(nil)
	require.NoError(t, err)

	_, err = m.CreateChattingSession(gsID, nil)
	require.NoError(t, err)

	_, err = m.CreateChattingSession(gsID, nil)
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestEndGeneralSession_CascadesToChildren(t *testing.T) {
	m := newTestManager(t)
	gsID, err := m.CreateGeneralSession(nil)
	require.NoError(t, err)

	csID, err := m.CreateChattingSession(gsID, nil)
	require.NoError(t, err)

	wsID, err := m.CreateWorkflowSession(gsID, coretypes.TaskWorkflowAutomation, nil)
	require.NoError(t, err)

	require.NoError(t, m.EndGeneralSession(gsID, nil))

	cs, err := m.Get(csID)
	require.NoError(t, err)
	assert.Equal(t, coretypes.SessionCompleted, cs.Status)
	assert.Equal(t, coretypes.EndParentEnded, cs.EndReason)

	ws, err := m.Get(wsID)
	require.NoError(t, err)
	assert.Equal(t, coretypes.SessionCompleted, ws.Status)
	assert.Equal(t, coretypes.EndParentEnded, ws.EndReason)

	gs, err := m.Get(gsID)
	require.NoError(t, err)
	assert.Equal(t, coretypes.SessionCompleted, gs.Status)
}

func TestCreateWorkflowSession_MultipleConcurrent(t *testing.T) {
	m := newTestManager(t)
	gsID, err := m.CreateGeneralSession(nil)
	require.NoError(t, err)

	ws1, err := m.CreateWorkflowSession(gsID, coretypes.TaskWorkflowAutomation, nil)
	require.NoError(t, err)
	ws2, err := m.CreateWorkflowSession(gsID, coretypes.TaskWorkflowAutomation, nil)
	require.NoError(t, err)

	assert.NotEqual(t, ws1, ws2)
}

func TestEndChattingSession_ClearsActiveSlot(t *testing.T) {
	m := newTestManager(t)
	gsID, err := m.CreateGeneralSession(nil)
	require.NoError(t, err)
	csID, err := m.CreateChattingSession(gsID, nil)
	require.NoError(t, err)

	require.NoError(t, m.EndChattingSession(csID, true))
	assert.Empty(t, m.ActiveChattingSession(gsID))

	// A new CS can now be created under the same GS.
	_, err = m.CreateChattingSession(gsID, nil)
	require.NoError(t, err)
}

func TestTimeoutSweeper_EndsInactiveSessions(t *testing.T) {
	store := storage.New(filepath.Join(t.TempDir()))
	records := NewRecordStore(store, []string{"memory", "session_records"})
	m := New(records, 50*time.Millisecond, event.NewBus())

	gsID, err := m.CreateGeneralSession(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartTimeoutSweeper(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, err := m.Get(gsID)
		return err == nil && s.Status == coretypes.SessionCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRecordStore_PersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	store := storage.New(dir)
	records := NewRecordStore(store, []string{"memory", "session_records"})

	records.RecordTrigger("session-1", coretypes.GeneralSession, "hello", "user-1")

	reloaded := NewRecordStore(store, []string{"memory", "session_records"})
	require.NoError(t, reloaded.Load(context.Background()))

	rec, ok := reloaded.Get("session-1")
	require.True(t, ok)
	assert.Equal(t, "hello", rec.TriggerSummary)
}

func TestRecordStore_CleanupOldRecords(t *testing.T) {
	store := storage.New(t.TempDir())
	records := NewRecordStore(store, []string{"memory", "session_records"})

	records.RecordTrigger("session-old", coretypes.GeneralSession, "", "")
	records.RecordCompletion("session-old", &coretypes.CompletionSummary{Success: true}, coretypes.EndNormal)

	rec, _ := records.Get("session-old")
	rec.CompletedAt = time.Now().AddDate(0, 0, -40)

	removed := records.CleanupOldRecords(context.Background(), 30)
	assert.Equal(t, 1, removed)

	_, ok := records.Get("session-old")
	assert.False(t, ok)
}
