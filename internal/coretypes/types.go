// Package coretypes holds the pure data types and enums shared by every
// core component of the orchestrator. It exists to break the cyclic
// reference between the State Manager, State Queue, and Session Manager
// (they talk through these shapes and the Event Bus, never through direct
// struct references).
package coretypes

import "time"

// CoreState is one of the states the State Queue schedules and the State
// Manager authoritatively holds.
type CoreState string

const (
	StateIdle     CoreState = "IDLE"
	StateChat     CoreState = "CHAT"
	StateWork     CoreState = "WORK"
	StateMischief CoreState = "MISCHIEF"
	StateSleep    CoreState = "SLEEP"
	StateError    CoreState = "ERROR"
)

// SessionKind distinguishes the three session tiers.
type SessionKind string

const (
	GeneralSession  SessionKind = "GeneralSession"
	ChattingSession SessionKind = "ChattingSession"
	WorkflowSession SessionKind = "WorkflowSession"
)

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
	SessionError      SessionStatus = "error"
)

// SessionEndReason is always a string enum in this port (spec.md §9 Open
// Question: the source sometimes carries a richer object; here it never
// does — richer detail belongs in Metadata).
type SessionEndReason string

const (
	EndNormal        SessionEndReason = "normal"
	EndTimeout       SessionEndReason = "timeout"
	EndParentEnded   SessionEndReason = "parent_ended"
	EndWorkInterrupt SessionEndReason = "work_interrupt"
	EndError         SessionEndReason = "error"
)

// WorkMode tags how urgently a queued or segmented WORK item should run.
type WorkMode string

const (
	WorkModeDirect     WorkMode = "direct"
	WorkModeBackground WorkMode = "background"
	WorkModeNone       WorkMode = ""
)

// IntentType is the classification a segmenter assigns to a text segment.
type IntentType string

const (
	IntentCall     IntentType = "CALL"
	IntentChat     IntentType = "CHAT"
	IntentWork     IntentType = "WORK"
	IntentResponse IntentType = "RESPONSE"
	IntentUnknown  IntentType = "UNKNOWN"
)

// TaskType names the kind of workflow task a Workflow Session carries.
type TaskType string

const (
	TaskWorkflowAutomation TaskType = "workflow_automation"
	TaskSystemNotification TaskType = "SYSTEM_NOTIFICATION"
)

// Session is an identified scope of interaction: GS, CS, or WS.
type Session struct {
	ID          string
	Kind        SessionKind
	ParentID    string // GS id for CS/WS, empty for GS
	Status      SessionStatus
	CreatedAt   time.Time
	LastActive  time.Time
	Metadata    map[string]any
	StepHistory []StepRecord
	EndReason   SessionEndReason
}

// StepRecord is one entry in a session's step history, used by workflow
// sessions to track the steps a workflow runner has taken.
type StepRecord struct {
	Name      string
	At        time.Time
	Result    map[string]any
	Succeeded bool
}

// QueueItem is a pending or executing entry in the State Queue.
type QueueItem struct {
	State          CoreState
	TriggerContent string
	ContextContent string
	TriggerUser    string
	Priority       int
	WorkMode       WorkMode
	Metadata       map[string]any
	CreatedAt      time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Executing reports whether this item has been promoted but not completed.
func (q *QueueItem) Executing() bool {
	return !q.StartedAt.IsZero() && q.CompletedAt.IsZero()
}

// IntentSegment is one classified span of segmenter output.
type IntentSegment struct {
	Text       string
	Intent     IntentType
	Confidence float64
	Priority   int
	Metadata   map[string]any
}

// Identity identifies a speaker and the memory token their snapshots are
// partitioned under.
type Identity struct {
	IdentityID  string
	DisplayName string
	SpeakerID   string
	MemoryToken string
}

// Event is the payload shape carried over the Event Bus. Data is a
// free-form map at the transport boundary; package event declares a typed
// payload struct for each SystemEvent variant, but Data is not converted
// to or validated against it.
type Event struct {
	Type      SystemEvent
	Data      map[string]any
	Source    string
	Timestamp time.Time
}

// SystemEvent is the closed enum of lifecycle events the main Event Bus
// carries.
type SystemEvent string

const (
	EventStateAdvanced           SystemEvent = "STATE_ADVANCED"
	EventStateChanged            SystemEvent = "STATE_CHANGED"
	EventSessionStarted          SystemEvent = "SESSION_STARTED"
	EventSessionEnded            SystemEvent = "SESSION_ENDED"
	EventCycleCompleted          SystemEvent = "CYCLE_COMPLETED"
	EventInputLayerComplete      SystemEvent = "INPUT_LAYER_COMPLETE"
	EventProcessingLayerComplete SystemEvent = "PROCESSING_LAYER_COMPLETE"
	EventOutputLayerComplete     SystemEvent = "OUTPUT_LAYER_COMPLETE"
	EventLLMResponseGenerated    SystemEvent = "LLM_RESPONSE_GENERATED"
	EventMemoryCreated           SystemEvent = "MEMORY_CREATED"
	EventTTSOutputGenerated      SystemEvent = "TTS_OUTPUT_GENERATED"
	EventWorkflowStepCompleted   SystemEvent = "WORKFLOW_STEP_COMPLETED"
	EventWorkflowFailed          SystemEvent = "WORKFLOW_FAILED"
	EventSleepExited             SystemEvent = "SLEEP_EXITED"
	EventWakeReady               SystemEvent = "WAKE_READY"
	EventStatusUpdated           SystemEvent = "STATUS_UPDATED"
)

// ToolPath tags which semantic catalogue a tool belongs to.
type ToolPath string

const (
	PathChat ToolPath = "PATH_CHAT"
	PathWork ToolPath = "PATH_WORK"
)

// Mode is the reasoning-module invocation mode.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeWork     Mode = "work"
	ModeDirect   Mode = "direct"
	ModeInternal Mode = "internal"
	ModeMischief Mode = "mischief"
)

// StatusUpdates is the delta block a chat/work mode response may carry,
// applied to the shared status model (spec.md §6).
type StatusUpdates struct {
	MoodDelta        float64 `json:"mood_delta,omitempty"`
	PrideDelta       float64 `json:"pride_delta,omitempty"`
	HelpfulnessDelta float64 `json:"helpfulness_delta,omitempty"`
	BoredomDelta     float64 `json:"boredom_delta,omitempty"`
}

// WorkflowDefinition is a catalogue entry the Workflow Validator scores
// segments against, sourced from internal/config.
type WorkflowDefinition struct {
	Name           string
	Description    string
	Keywords       []string
	StrongKeywords []string
	Mode           WorkMode
}
