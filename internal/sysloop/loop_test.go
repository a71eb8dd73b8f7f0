package sysloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uep-dev/uepd/internal/coordinator"
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

type fakeSTT struct{ text string }

func (f *fakeSTT) Name() string { return "stt" }
func (f *fakeSTT) Close() error { return nil }
func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.text, nil
}

type fakeLLM struct {
	resp    modules.ReasoningResponse
	lastReq modules.ReasoningRequest
	calls   int
}

func (f *fakeLLM) Name() string { return "llm" }
func (f *fakeLLM) Close() error { return nil }
func (f *fakeLLM) Respond(ctx context.Context, req modules.ReasoningRequest) (modules.ReasoningResponse, error) {
	f.calls++
	f.lastReq = req
	return f.resp, nil
}

type fakeMem struct{}

func (f *fakeMem) Name() string { return "mem" }
func (f *fakeMem) Close() error { return nil }
func (f *fakeMem) RetrieveSnapshots(ctx context.Context, memoryToken string, limit int) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeMem) StoreObservation(ctx context.Context, memoryToken string, observation string) error {
	return nil
}

type fakeTTS struct{}

func (f *fakeTTS) Name() string { return "tts" }
func (f *fakeTTS) Close() error { return nil }
func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

type fixture struct {
	loop  *Loop
	queue *statequeue.Queue
	state *statemanager.Manager
	wctx  *workingcontext.Context
	llm   *fakeLLM
	bus   *event.Bus
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
	llm := &fakeLLM{resp: modules.ReasoningResponse{Text: "ok"}}
	registry.RegisterModule("stt", &fakeSTT{text: "hi"}, nil)
	registry.RegisterModule("llm", llm, nil)
	registry.RegisterModule("mem", &fakeMem{}, nil)
	registry.RegisterModule("tts", &fakeTTS{}, nil)

	seg := segmenter.New(segmenter.NewKeywordTagger(), nil)
	workflow := coordinator.NewInMemoryWorkflowRunner()
	coord := coordinator.New(sessions, state, wctx, registry, seg, workflow, coretypes.Identity{IdentityID: "default", MemoryToken: "default-token"}, bus)

	loop := New(queue, state, wctx, coord, bus)
	loop.SetIdleSleep(2 * time.Millisecond)

	return &fixture{loop: loop, queue: queue, state: state, wctx: wctx, llm: llm, bus: bus}
}

func TestTick_NoPendingItemIsNoop(t *testing.T) {
	f := newFixture(t)
	f.loop.tick(context.Background())
	assert.Equal(t, 0, f.llm.calls)
	assert.Equal(t, coretypes.StateIdle, f.state.CurrentState())
}

func TestTick_PromotesChatItemAndRunsCoordinatorCycle(t *testing.T) {
	f := newFixture(t)
	f.queue.AddState(coretypes.StateChat, "hello", "hello", coretypes.WorkModeNone, nil, nil)

	f.loop.tick(context.Background())

	assert.Equal(t, 1, f.llm.calls)
	assert.Equal(t, "hello", f.llm.lastReq.Prompt)
	assert.Equal(t, coretypes.ModeChat, f.llm.lastReq.Mode)
	assert.Equal(t, coretypes.StateChat, f.state.CurrentState())
}

func TestTick_PromotesWorkItemAndRunsCoordinatorCycle(t *testing.T) {
	f := newFixture(t)
	f.queue.AddState(coretypes.StateWork, "clean the bin", "clean the bin", coretypes.WorkModeDirect, nil, nil)

	f.loop.tick(context.Background())

	assert.Equal(t, 1, f.llm.calls)
	assert.Equal(t, coretypes.ModeWork, f.llm.lastReq.Mode)
}

func TestTick_MischiefStateSkipsCoordinator(t *testing.T) {
	f := newFixture(t)
	f.queue.AddState(coretypes.StateMischief, "boo", "boo", coretypes.WorkModeNone, nil, nil)

	f.loop.tick(context.Background())

	assert.Equal(t, 0, f.llm.calls)
	assert.Equal(t, coretypes.StateMischief, f.state.CurrentState())
}

func TestTick_PublishesCycleCompletedOnCoordinatorRun(t *testing.T) {
	f := newFixture(t)
	f.queue.AddState(coretypes.StateChat, "hello", "hello", coretypes.WorkModeNone, nil, nil)

	received := make(chan coretypes.Event, 1)
	unsub := f.bus.Subscribe(coretypes.EventCycleCompleted, "test", func(e coretypes.Event) {
		received <- e
	})
	defer unsub()

	f.loop.tick(context.Background())

	select {
	case e := <-received:
		assert.Equal(t, coretypes.EventCycleCompleted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for CYCLE_COMPLETED")
	}
}

func TestTick_IncrementsCycleIndexOnCoordinatorRun(t *testing.T) {
	f := newFixture(t)
	f.queue.AddState(coretypes.StateChat, "hello", "hello", coretypes.WorkModeNone, nil, nil)

	before := f.wctx.CurrentCycleIndex()
	f.loop.tick(context.Background())
	assert.Equal(t, before+1, f.wctx.CurrentCycleIndex())
}

func TestStartStop_DrivesAtLeastOneTick(t *testing.T) {
	f := newFixture(t)
	f.queue.AddState(coretypes.StateChat, "hello", "hello", coretypes.WorkModeNone, nil, nil)

	require.NoError(t, f.loop.Start(context.Background()))
	require.Eventually(t, func() bool { return f.llm.calls > 0 }, time.Second, 5*time.Millisecond)
	f.loop.Stop()
}

func TestStart_TwiceReturnsErrAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.Start(context.Background()))
	defer f.loop.Stop()

	err := f.loop.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}
