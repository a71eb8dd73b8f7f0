// Package coordinator implements the Module Coordinator; see doc.go.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/logging"
	"github.com/uep-dev/uepd/internal/modules"
	"github.com/uep-dev/uepd/internal/segmenter"
	"github.com/uep-dev/uepd/internal/session"
	"github.com/uep-dev/uepd/internal/statemanager"
	"github.com/uep-dev/uepd/internal/workingcontext"
)

// ttsChunkSize is the longest run of text handed to TTS.Synthesize in
// one call; longer output is split on sentence boundaries where
// possible (spec.md §4.7, glossary "chunking").
const ttsChunkSize = 240

// defaultToolTimeout bounds a single tool dispatch (spec.md §5).
const defaultToolTimeout = 30 * time.Second

// sessionEndConfidenceThreshold is the minimum session_control.confidence
// that lets a should_end_session signal actually end the session.
const sessionEndConfidenceThreshold = 0.7

// Coordinator drives the three layers for one cycle at a time. The
// System Loop owns the tick; Coordinator never advances on its own
// schedule.
type Coordinator struct {
	sessions *session.Manager
	state    *statemanager.Manager
	wctx     *workingcontext.Context
	registry  *modules.Registry
	segmenter *segmenter.Segmenter
	workflow  WorkflowControl
	bus       *event.Bus

	defaultIdentity coretypes.Identity
	toolTimeout     time.Duration
}

// New creates a Coordinator wired to its collaborators. registry supplies
// the capability modules (stt, llm, mem, tts, sys — nlp is owned by seg,
// not called directly); seg is the Intent Segmenter run over every fresh
// capture; workflow is the PATH_WORK dispatch target; bus is the Core
// aggregate's event bus.
func New(sessions *session.Manager, state *statemanager.Manager, wctx *workingcontext.Context, registry *modules.Registry, seg *segmenter.Segmenter, workflow WorkflowControl, defaultIdentity coretypes.Identity, bus *event.Bus) *Coordinator {
	return &Coordinator{
		sessions:        sessions,
		state:           state,
		wctx:            wctx,
		registry:        registry,
		segmenter:       seg,
		workflow:        workflow,
		bus:             bus,
		defaultIdentity: defaultIdentity,
		toolTimeout:     defaultToolTimeout,
	}
}

// SetToolTimeout overrides the per-tool dispatch timeout, primarily for
// tests.
func (c *Coordinator) SetToolTimeout(d time.Duration) { c.toolTimeout = d }

// RunCycle drives input, processing, and output in order for one cycle.
// On a layer failure it ends the active session with reason "error" and
// returns the wrapped error; the caller (System Loop) still publishes
// CYCLE_COMPLETED with the error recorded.
func (c *Coordinator) RunCycle(ctx context.Context, in CycleInput) (CycleResult, error) {
	text, segments, err := c.runInputLayer(ctx, in)
	if err != nil {
		c.failCycle(&layerError{"input", err})
		return CycleResult{}, &layerError{"input", err}
	}

	result, err := c.runProcessingLayer(ctx, text, segments)
	if err != nil {
		c.failCycle(&layerError{"processing", err})
		return CycleResult{}, &layerError{"processing", err}
	}

	if err := c.runOutputLayer(ctx, result.Text); err != nil {
		c.failCycle(&layerError{"output", err})
		return CycleResult{}, &layerError{"output", err}
	}

	return result, nil
}

// failCycle ends the current session (if any) with reason "error",
// mirroring spec.md §4.7's "the current session ends with reason error".
func (c *Coordinator) failCycle(err error) {
	logging.Logger.Error().Err(err).Msg("coordinator: cycle failed")
	sessionID := c.state.CurrentSessionID()
	if sessionID == "" {
		return
	}
	s, lookupErr := c.sessions.Get(sessionID)
	if lookupErr != nil {
		return
	}
	switch s.Kind {
	case coretypes.ChattingSession:
		_ = c.sessions.EndChattingSessionWithReason(sessionID, false, coretypes.EndError)
	case coretypes.WorkflowSession:
		_ = c.sessions.EndWorkflowSessionWithReason(sessionID, map[string]any{"error": err.Error()}, coretypes.EndError)
	}
}

// --- input layer ---

func (c *Coordinator) runInputLayer(ctx context.Context, in CycleInput) (string, []coretypes.IntentSegment, error) {
	if in.SkipInputLayer {
		c.bus.Publish(coretypes.EventInputLayerComplete, map[string]any{
			"text":       in.Text,
			"nlp_result": in.NLPResult,
			"synthetic":  true,
		}, "coordinator.Coordinator")
		return in.Text, in.NLPResult, nil
	}

	sttModule, err := c.registry.Get("stt")
	if err != nil {
		return "", nil, err
	}
	stt, ok := sttModule.(modules.STT)
	if !ok {
		return "", nil, fmt.Errorf("coordinator: module %q does not implement STT", sttModule.Name())
	}
	text, err := stt.Transcribe(ctx, nil)
	if err != nil {
		return "", nil, err
	}

	var segments []coretypes.IntentSegment
	if c.segmenter != nil {
		segments = c.segmenter.Segment(text)
	}

	c.bus.Publish(coretypes.EventInputLayerComplete, map[string]any{
		"text":       text,
		"nlp_result": segments,
	}, "coordinator.Coordinator")

	return text, segments, nil
}

// --- processing layer ---

func (c *Coordinator) resolveIdentity(declared string) coretypes.Identity {
	if declared != "" {
		return coretypes.Identity{IdentityID: declared}
	}
	if id := c.wctx.CurrentIdentity(); id != nil {
		return *id
	}
	return c.defaultIdentity
}

func (c *Coordinator) activePath() (coretypes.ToolPath, string, error) {
	sessionID := c.state.CurrentSessionID()
	if sessionID == "" {
		return "", "", fmt.Errorf("coordinator: no active session for current state %s", c.state.CurrentState())
	}
	s, err := c.sessions.Get(sessionID)
	if err != nil {
		return "", "", err
	}
	switch s.Kind {
	case coretypes.ChattingSession:
		return coretypes.PathChat, sessionID, nil
	case coretypes.WorkflowSession:
		return coretypes.PathWork, sessionID, nil
	default:
		return "", "", fmt.Errorf("coordinator: session %s is not a CS or WS", sessionID)
	}
}

func (c *Coordinator) runProcessingLayer(ctx context.Context, text string, segments []coretypes.IntentSegment) (CycleResult, error) {
	path, sessionID, err := c.activePath()
	if err != nil {
		return CycleResult{}, err
	}

	identity := c.resolveIdentity(c.wctx.DeclaredIdentityID())
	catalogue := catalogueForPath(path)

	toolChoice := "AUTO"
	midStep := path == coretypes.PathWork && c.workflow != nil && c.workflow.IsMidStep(sessionID)
	if len(catalogue) > 0 && !midStep {
		toolChoice = "ANY"
	}

	mode := coretypes.ModeChat
	if path == coretypes.PathWork {
		mode = coretypes.ModeWork
	}

	llmModule, err := c.registry.Get("llm")
	if err != nil {
		return CycleResult{}, err
	}
	llm, ok := llmModule.(modules.LLM)
	if !ok {
		return CycleResult{}, fmt.Errorf("coordinator: module %q does not implement LLM", llmModule.Name())
	}

	resp, err := llm.Respond(ctx, modules.ReasoningRequest{
		Mode:           mode,
		Prompt:         text,
		Tools:          catalogue,
		ToolChoiceMode: toolChoice,
		SessionID:      sessionID,
	})
	if err != nil {
		return CycleResult{}, err
	}

	c.bus.Publish(coretypes.EventLLMResponseGenerated, map[string]any{
		"sessionID": sessionID,
		"mode":      mode,
	}, "coordinator.Coordinator")

	if resp.StatusUpdates != nil {
		c.bus.Publish(coretypes.EventStatusUpdated, map[string]any{
			"mood_delta":        resp.StatusUpdates.MoodDelta,
			"pride_delta":       resp.StatusUpdates.PrideDelta,
			"helpfulness_delta": resp.StatusUpdates.HelpfulnessDelta,
			"boredom_delta":     resp.StatusUpdates.BoredomDelta,
		}, "coordinator.Coordinator")
	}

	result := CycleResult{Text: resp.Text, NLPResult: segments}

	if resp.FunctionCall != nil {
		funcResult, dispatchErr := c.dispatchFunctionCall(ctx, path, sessionID, identity, resp.FunctionCall)
		if dispatchErr != nil {
			return CycleResult{}, dispatchErr
		}
		result.FunctionResult = funcResult
	} else if resp.Text != "" {
		c.storeObservation(ctx, identity, resp.Text)
	}

	if resp.SessionControl != nil && resp.SessionControl.ShouldEndSession && resp.SessionControl.Confidence >= sessionEndConfidenceThreshold {
		if endErr := c.endSession(path, sessionID, resp.SessionControl.EndReason); endErr != nil {
			return CycleResult{}, endErr
		}
		result.SessionEnded = true
		result.EndReason = resp.SessionControl.EndReason
	}

	c.bus.Publish(coretypes.EventProcessingLayerComplete, map[string]any{
		"sessionID": sessionID,
	}, "coordinator.Coordinator")

	return result, nil
}

func (c *Coordinator) storeObservation(ctx context.Context, identity coretypes.Identity, text string) {
	memModule, err := c.registry.Get("mem")
	if err != nil {
		return
	}
	mem, ok := memModule.(modules.Mem)
	if !ok {
		return
	}
	if err := mem.StoreObservation(ctx, identity.MemoryToken, text); err != nil {
		logging.Logger.Warn().Err(err).Msg("coordinator: failed to store memory observation")
		return
	}
	c.bus.Publish(coretypes.EventMemoryCreated, map[string]any{
		"memoryToken": identity.MemoryToken,
	}, "coordinator.Coordinator")
}

func (c *Coordinator) endSession(path coretypes.ToolPath, sessionID string, reason coretypes.SessionEndReason) error {
	if reason == "" {
		reason = coretypes.EndNormal
	}
	switch path {
	case coretypes.PathChat:
		return c.sessions.EndChattingSession(sessionID, true)
	case coretypes.PathWork:
		return c.sessions.EndWorkflowSession(sessionID, map[string]any{"end_reason": reason})
	}
	return nil
}

func (c *Coordinator) dispatchFunctionCall(ctx context.Context, path coretypes.ToolPath, sessionID string, identity coretypes.Identity, call *modules.FunctionCall) (map[string]any, error) {
	if err := enforcePath(path, call.Name); err != nil {
		return nil, err
	}

	if call.Arguments == nil {
		call.Arguments = make(map[string]any)
	}
	// session_id is always the current workflow session, overriding
	// whatever the model supplied (spec.md §4.7).
	call.Arguments["session_id"] = sessionID

	toolCtx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()

	type dispatchResult struct {
		result map[string]any
		err    error
	}
	done := make(chan dispatchResult, 1)
	go func() {
		if _, isWorkflowTool := workflowToolNames[call.Name]; isWorkflowTool {
			res, err := dispatchWorkflowTool(c.workflow, call, sessionID)
			done <- dispatchResult{res, err}
			return
		}
		if _, isMemoryTool := memoryToolNames[call.Name]; isMemoryTool {
			memModule, err := c.registry.Get("mem")
			if err != nil {
				done <- dispatchResult{nil, err}
				return
			}
			mem, ok := memModule.(modules.Mem)
			if !ok {
				done <- dispatchResult{nil, fmt.Errorf("coordinator: module %q does not implement Mem", memModule.Name())}
				return
			}
			res, err := dispatchMemoryTool(toolCtx, mem, call, identity.MemoryToken)
			done <- dispatchResult{res, err}
			return
		}
		done <- dispatchResult{nil, fmt.Errorf("coordinator: %q is in neither the workflow nor memory tool set", call.Name)}
	}()

	select {
	case <-toolCtx.Done():
		return nil, ErrToolTimeout
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if _, isWorkflowTool := workflowToolNames[call.Name]; isWorkflowTool {
			c.bus.Publish(coretypes.EventWorkflowStepCompleted, map[string]any{
				"sessionID": sessionID,
				"tool":      call.Name,
			}, "coordinator.Coordinator")
		}
		return r.result, nil
	}
}

// --- output layer ---

func (c *Coordinator) runOutputLayer(ctx context.Context, text string) error {
	if text == "" {
		c.bus.Publish(coretypes.EventOutputLayerComplete, map[string]any{"chunks": 0}, "coordinator.Coordinator")
		return nil
	}

	ttsModule, err := c.registry.Get("tts")
	if err != nil {
		// No TTS registered is not an error outside of headless runs;
		// still publish completion so the Loop can advance.
		c.bus.Publish(coretypes.EventOutputLayerComplete, map[string]any{"chunks": 0, "skipped": "tts not registered"}, "coordinator.Coordinator")
		return nil
	}
	tts, ok := ttsModule.(modules.TTS)
	if !ok {
		return fmt.Errorf("coordinator: module %q does not implement TTS", ttsModule.Name())
	}

	chunks := chunkText(text, ttsChunkSize)
	for i, chunk := range chunks {
		if _, err := tts.Synthesize(ctx, chunk); err != nil {
			return err
		}
		c.bus.Publish(coretypes.EventTTSOutputGenerated, map[string]any{
			"chunk":      i,
			"totalChunk": len(chunks),
		}, "coordinator.Coordinator")
	}

	c.bus.Publish(coretypes.EventOutputLayerComplete, map[string]any{"chunks": len(chunks)}, "coordinator.Coordinator")
	return nil
}

// chunkText splits text into pieces no longer than maxLen, preferring to
// break on a sentence boundary (". ") before falling back to a hard cut.
func chunkText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		cut := maxLen
		if idx := lastSentenceBoundary(remaining[:maxLen]); idx > 0 {
			cut = idx
		}
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func lastSentenceBoundary(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		if s[i-1] == '.' && s[i] == ' ' {
			return i + 1
		}
	}
	return -1
}
