package event

import "github.com/uep-dev/uepd/internal/coretypes"

// Payload structs for each coretypes.SystemEvent variant. Handlers receive
// the raw coretypes.Event.Data map; these types describe each variant's
// payload, but publishers build Data as a plain map with their own keys and
// nothing converts or validates Data against these structs.

// StateAdvancedData is published when the State Queue promotes a queued
// item into the active slot.
type StateAdvancedData struct {
	State    coretypes.CoreState
	Item     coretypes.QueueItem
	Previous coretypes.CoreState
}

// StateChangedData is published whenever the State Manager's authoritative
// state field changes, regardless of cause.
type StateChangedData struct {
	From coretypes.CoreState
	To   coretypes.CoreState
}

// SessionStartedData is published when a GS/CS/WS is created.
type SessionStartedData struct {
	SessionID string
	Kind      coretypes.SessionKind
	ParentID  string
}

// SessionEndedData is published when a session ends, for any reason.
type SessionEndedData struct {
	SessionID string
	Kind      coretypes.SessionKind
	Reason    coretypes.SessionEndReason
	Summary   *coretypes.CompletionSummary
}

// CycleCompletedData is published once per System Loop tick, after all
// three layers have run.
type CycleCompletedData struct {
	CycleIndex int
	State      coretypes.CoreState
}

// InputLayerCompleteData is published when the Module Coordinator's input
// layer finishes resolving identity and routing for the active item.
type InputLayerCompleteData struct {
	SessionID  string
	IdentityID string
	Path       coretypes.ToolPath
}

// ProcessingLayerCompleteData is published when the reasoning-module call
// for the active item returns.
type ProcessingLayerCompleteData struct {
	SessionID string
	Succeeded bool
}

// OutputLayerCompleteData is published when the output layer finishes
// delivering a response (including any TTS chunking).
type OutputLayerCompleteData struct {
	SessionID  string
	ChunkCount int
}

// LLMResponseGeneratedData carries the raw reasoning-module response text
// before output-layer post-processing.
type LLMResponseGeneratedData struct {
	SessionID string
	Text      string
	ToolCalls int
}

// MemoryCreatedData is published when an identity snapshot or accumulation
// context writes a new memory entry.
type MemoryCreatedData struct {
	IdentityID  string
	MemoryToken string
}

// TTSOutputGeneratedData is published once per output-layer TTS chunk.
type TTSOutputGeneratedData struct {
	SessionID  string
	ChunkIndex int
	Text       string
}

// WorkflowStepCompletedData is published after a Workflow Session's runner
// finishes one step.
type WorkflowStepCompletedData struct {
	SessionID string
	StepName  string
	Succeeded bool
}

// WorkflowFailedData is published when a Workflow Session's runner gives up.
type WorkflowFailedData struct {
	SessionID string
	StepName  string
	Error     string
}

// SleepExitedData is published when the State Manager leaves SLEEP.
type SleepExitedData struct {
	Reason string
}

// WakeReadyData is published only after every capability module has
// finished re-registering following a wake from SLEEP.
type WakeReadyData struct {
	ModuleCount int
}
