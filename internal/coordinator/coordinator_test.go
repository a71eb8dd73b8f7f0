package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/modules"
	"github.com/uep-dev/uepd/internal/segmenter"
	"github.com/uep-dev/uepd/internal/session"
	"github.com/uep-dev/uepd/internal/statemanager"
	"github.com/uep-dev/uepd/internal/statequeue"
	"github.com/uep-dev/uepd/internal/storage"
	"github.com/uep-dev/uepd/internal/workingcontext"
)

// --- fake modules ---

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Name() string { return "stt" }
func (f *fakeSTT) Close() error { return nil }
func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.text, f.err
}

type fakeLLM struct {
	resp modules.ReasoningResponse
	err  error

	lastReq modules.ReasoningRequest
}

func (f *fakeLLM) Name() string { return "llm" }
func (f *fakeLLM) Close() error { return nil }
func (f *fakeLLM) Respond(ctx context.Context, req modules.ReasoningRequest) (modules.ReasoningResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeMem struct {
	snapshots []map[string]any
	err       error

	stored []string
}

func (f *fakeMem) Name() string { return "mem" }
func (f *fakeMem) Close() error { return nil }
func (f *fakeMem) RetrieveSnapshots(ctx context.Context, memoryToken string, limit int) ([]map[string]any, error) {
	return f.snapshots, f.err
}
func (f *fakeMem) StoreObservation(ctx context.Context, memoryToken string, observation string) error {
	f.stored = append(f.stored, observation)
	return f.err
}

type fakeTTS struct {
	synthesized []string
	err         error
}

func (f *fakeTTS) Name() string { return "tts" }
func (f *fakeTTS) Close() error { return nil }
func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.synthesized = append(f.synthesized, text)
	return []byte(text), f.err
}

// --- fixture ---

type fixture struct {
	coord    *Coordinator
	sessions *session.Manager
	state    *statemanager.Manager
	wctx     *workingcontext.Context
	registry *modules.Registry
	workflow *InMemoryWorkflowRunner

	stt *fakeSTT
	llm *fakeLLM
	mem *fakeMem
	tts *fakeTTS
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	store := storage.New(t.TempDir())
	records := session.NewRecordStore(store, []string{"memory", "session_records"})
	sessions := session.New(records, 5*time.Second, bus)
	wctx := workingcontext.New()
	queue := statequeue.New(store, []string{"memory", "state_queue"}, wctx, bus)
	state := statemanager.New(sessions, queue, wctx, store, true, bus)
	t.Cleanup(state.Close)

	registry := modules.NewRegistry()
	stt := &fakeSTT{text: "hello there"}
	llm := &fakeLLM{resp: modules.ReasoningResponse{Text: "hi"}}
	mem := &fakeMem{}
	tts := &fakeTTS{}
	registry.RegisterModule("stt", stt, nil)
	registry.RegisterModule("llm", llm, nil)
	registry.RegisterModule("mem", mem, nil)
	registry.RegisterModule("tts", tts, nil)

	seg := segmenter.New(segmenter.NewKeywordTagger(), nil)
	workflow := NewInMemoryWorkflowRunner()

	coord := New(sessions, state, wctx, registry, seg, workflow, coretypes.Identity{IdentityID: "default", MemoryToken: "default-token"}, bus)

	return &fixture{
		coord: coord, sessions: sessions, state: state, wctx: wctx, registry: registry, workflow: workflow,
		stt: stt, llm: llm, mem: mem, tts: tts,
	}
}

func (f *fixture) enterChat(t *testing.T) string {
	t.Helper()
	ok, err := f.state.SetState(coretypes.StateChat, nil)
	require.NoError(t, err)
	require.True(t, ok)
	sessionID := f.state.CurrentSessionID()
	require.NotEmpty(t, sessionID)
	return sessionID
}

func (f *fixture) enterWork(t *testing.T) string {
	t.Helper()
	ok, err := f.state.SetState(coretypes.StateWork, nil)
	require.NoError(t, err)
	require.True(t, ok)
	sessionID := f.state.CurrentSessionID()
	require.NotEmpty(t, sessionID)
	return sessionID
}

// --- tests ---

func TestRunCycle_NoActiveSession_ReturnsError(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.RunCycle(context.Background(), CycleInput{})
	require.Error(t, err)
}

func TestRunCycle_NormalCycle_TranscribesAndSegments(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)

	result, err := f.coord.RunCycle(context.Background(), CycleInput{})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Text)
	assert.NotNil(t, f.llm.lastReq)
	assert.Equal(t, coretypes.ModeChat, f.llm.lastReq.Mode)
	assert.Equal(t, "hello there", f.llm.lastReq.Prompt)
}

func TestRunCycle_SkipInputLayer_UsesPromotedContent(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)

	promoted := []coretypes.IntentSegment{{Text: "clean the bin", Intent: coretypes.IntentWork}}
	result, err := f.coord.RunCycle(context.Background(), CycleInput{
		SkipInputLayer: true,
		Text:           "clean the bin",
		NLPResult:      promoted,
	})
	require.NoError(t, err)
	assert.Equal(t, "clean the bin", f.llm.lastReq.Prompt)
	assert.Equal(t, promoted, result.NLPResult)
}

func TestRunCycle_ChattingSession_SelectsPathChatAndANYToolChoice(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)

	_, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ANY", f.llm.lastReq.ToolChoiceMode)
	assert.ElementsMatch(t, chatTools, f.llm.lastReq.Tools)
}

func TestRunCycle_WorkflowSession_FreshRunUsesANYToolChoice(t *testing.T) {
	f := newFixture(t)
	f.enterWork(t)

	_, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "start the cleanup"})
	require.NoError(t, err)
	assert.Equal(t, coretypes.ModeWork, f.llm.lastReq.Mode)
	assert.Equal(t, "ANY", f.llm.lastReq.ToolChoiceMode)
	assert.ElementsMatch(t, workTools, f.llm.lastReq.Tools)
}

func TestRunCycle_WorkflowSession_MidStepUsesAUTOToolChoice(t *testing.T) {
	f := newFixture(t)
	sessionID := f.enterWork(t)
	_, err := f.workflow.StartWorkflow(sessionID, nil)
	require.NoError(t, err)
	require.True(t, f.workflow.IsMidStep(sessionID))

	_, err = f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "continue"})
	require.NoError(t, err)
	assert.Equal(t, "AUTO", f.llm.lastReq.ToolChoiceMode)
}

func TestRunCycle_FunctionCall_DispatchesToWorkflowControl(t *testing.T) {
	f := newFixture(t)
	sessionID := f.enterWork(t)
	f.llm.resp = modules.ReasoningResponse{
		FunctionCall: &modules.FunctionCall{Name: "start_workflow", Arguments: map[string]any{"workflow": "clean_trash_bin"}},
	}

	result, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "start cleaning"})
	require.NoError(t, err)
	require.NotNil(t, result.FunctionResult)
	assert.Equal(t, "running", result.FunctionResult["status"])
	assert.True(t, f.workflow.IsMidStep(sessionID))
}

func TestRunCycle_FunctionCall_DispatchesToMemoryTools(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)
	f.llm.resp = modules.ReasoningResponse{
		FunctionCall: &modules.FunctionCall{Name: "store_observation", Arguments: map[string]any{"observation": "likes tea"}},
	}

	result, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "remember I like tea"})
	require.NoError(t, err)
	require.NotNil(t, result.FunctionResult)
	assert.Equal(t, true, result.FunctionResult["stored"])
	assert.Equal(t, []string{"likes tea"}, f.mem.stored)
}

func TestRunCycle_FunctionCall_InjectsSessionIDOverridingModelValue(t *testing.T) {
	f := newFixture(t)
	sessionID := f.enterWork(t)
	f.llm.resp = modules.ReasoningResponse{
		FunctionCall: &modules.FunctionCall{Name: "get_workflow_status", Arguments: map[string]any{"session_id": "attacker-supplied"}},
	}

	_, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "status?"})
	require.NoError(t, err)
	assert.Equal(t, sessionID, f.llm.resp.FunctionCall.Arguments["session_id"])
}

func TestRunCycle_FunctionCall_RejectsToolOutsideCatalogue(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)
	f.llm.resp = modules.ReasoningResponse{
		FunctionCall: &modules.FunctionCall{Name: "start_workflow"},
	}

	_, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "do a workflow thing"})
	require.Error(t, err)
	var pathErr *errWrongPath
	assert.ErrorAs(t, err, &pathErr)
}

func TestRunCycle_SessionControl_EndsSessionAboveConfidenceThreshold(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)
	f.llm.resp = modules.ReasoningResponse{
		Text: "goodbye",
		SessionControl: &modules.SessionControl{
			ShouldEndSession: true,
			EndReason:        coretypes.EndNormal,
			Confidence:       0.95,
		},
	}

	result, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "bye"})
	require.NoError(t, err)
	assert.True(t, result.SessionEnded)
	assert.Equal(t, coretypes.EndNormal, result.EndReason)
}

func TestRunCycle_SessionControl_BelowConfidenceThresholdLeavesSessionOpen(t *testing.T) {
	f := newFixture(t)
	sessionID := f.enterChat(t)
	f.llm.resp = modules.ReasoningResponse{
		Text: "maybe goodbye",
		SessionControl: &modules.SessionControl{
			ShouldEndSession: true,
			Confidence:       0.4,
		},
	}

	result, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "bye?"})
	require.NoError(t, err)
	assert.False(t, result.SessionEnded)

	s, err := f.sessions.Get(sessionID)
	require.NoError(t, err)
	assert.Equal(t, coretypes.SessionActive, s.Status)
}

func TestRunCycle_ToolTimeout_ReturnsErrToolTimeout(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)
	f.coord.SetToolTimeout(5 * time.Millisecond)

	slow := &slowMem{fakeMem: f.mem, delay: 50 * time.Millisecond}
	f.registry.RegisterModule("mem", slow, nil)

	f.llm.resp = modules.ReasoningResponse{
		FunctionCall: &modules.FunctionCall{Name: "store_observation", Arguments: map[string]any{"observation": "slow"}},
	}

	_, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "remember this"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolTimeout)
}

type slowMem struct {
	*fakeMem
	delay time.Duration
}

// StoreObservation ignores ctx cancellation deliberately, so the
// surrounding test can assert that dispatchFunctionCall's own select on
// toolCtx.Done() is what produces ErrToolTimeout, not an early return from
// this method noticing the same cancellation.
func (s *slowMem) StoreObservation(ctx context.Context, memoryToken string, observation string) error {
	time.Sleep(s.delay)
	return s.fakeMem.StoreObservation(context.Background(), memoryToken, observation)
}

func TestRunCycle_LayerFailure_EndsSessionWithErrorReason(t *testing.T) {
	f := newFixture(t)
	sessionID := f.enterWork(t)
	f.llm.err = assertError{"boom"}

	_, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "do work"})
	require.Error(t, err)

	s, lookupErr := f.sessions.Get(sessionID)
	require.NoError(t, lookupErr)
	assert.Equal(t, coretypes.SessionCompleted, s.Status)
	assert.Equal(t, coretypes.EndError, s.EndReason)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestChunkText_SplitsOnSentenceBoundaryWhenPossible(t *testing.T) {
	text := "First sentence. Second sentence. " + repeatChar('x', 220)
	chunks := chunkText(text, ttsChunkSize)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[:len(chunks)-1] {
		assert.LessOrEqual(t, len(c), ttsChunkSize)
	}
}

func TestChunkText_ShortTextIsSingleChunk(t *testing.T) {
	chunks := chunkText("hi there", ttsChunkSize)
	assert.Equal(t, []string{"hi there"}, chunks)
}

func TestRunCycle_OutputLayer_SynthesizesChunks(t *testing.T) {
	f := newFixture(t)
	f.enterChat(t)
	f.llm.resp = modules.ReasoningResponse{Text: "a short reply"}

	_, err := f.coord.RunCycle(context.Background(), CycleInput{SkipInputLayer: true, Text: "hi"})
	require.NoError(t, err)
	require.Len(t, f.tts.synthesized, 1)
	assert.Equal(t, "a short reply", f.tts.synthesized[0])
}

func repeatChar(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
