package coretypes

import "time"

// StatusTransition is one entry in a SessionRecord's transition history.
type StatusTransition struct {
	From    SessionStatus
	To      SessionStatus
	At      time.Time
	Details map[string]any
}

// CompletionSummary is attached to a SessionRecord once its session ends.
type CompletionSummary struct {
	Success    bool
	ResultData map[string]any
}

// SessionRecord is an append-only history entry for one session's
// lifetime: its trigger, its status transitions, and (once ended) its
// completion summary. Grounded on the three-index session record store
// (by record id, by business session id, by session kind).
type SessionRecord struct {
	RecordID       string
	Kind           SessionKind
	SessionID      string
	Status         SessionStatus
	TriggerSummary string
	TriggerUser    string
	Transitions    []StatusTransition
	Metadata       map[string]any
	Completion     *CompletionSummary
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    time.Time
}
