package statemanager

import (
	"sync"

	"github.com/uep-dev/uepd/internal/coretypes"
)

// Default thresholds gating the debounced special-state entry checks
// (spec.md §4.5: "high boredom for SLEEP; boredom + mood thresholds for
// MISCHIEF").
const (
	DefaultSleepBoredomThreshold    = 0.85
	DefaultMischiefBoredomThreshold = 0.6
	DefaultMischiefMoodThreshold    = 0.4
)

// Status is the shared status model: a small set of bounded mood axes
// that chat/work responses nudge via StatusUpdates deltas, and that the
// State Manager reads to decide on special-state transitions.
type Status struct {
	mu sync.Mutex

	Mood        float64
	Pride       float64
	Helpfulness float64
	Boredom     float64

	suppressedHelpfulness *float64
}

// NewStatus creates a status model with Mood, Pride and Helpfulness at a
// neutral 0.5 and Boredom at 0.
func NewStatus() *Status {
	return &Status{Mood: 0.5, Pride: 0.5, Helpfulness: 0.5, Boredom: 0.0}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ApplyDelta applies a StatusUpdates block, clamping every axis to [0,1].
func (s *Status) ApplyDelta(u coretypes.StatusUpdates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mood = clamp01(s.Mood + u.MoodDelta)
	s.Pride = clamp01(s.Pride + u.PrideDelta)
	s.Helpfulness = clamp01(s.Helpfulness + u.HelpfulnessDelta)
	s.Boredom = clamp01(s.Boredom + u.BoredomDelta)
}

// Snapshot returns a value copy of the current axes.
func (s *Status) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Mood: s.Mood, Pride: s.Pride, Helpfulness: s.Helpfulness, Boredom: s.Boredom}
}

// SuppressHelpfulness zeroes helpfulness, remembering the prior value so
// RestoreHelpfulness can undo it on exit_special_state. A second call
// before restoring is a no-op: the original value is preserved.
func (s *Status) SuppressHelpfulness() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suppressedHelpfulness != nil {
		return
	}
	prior := s.Helpfulness
	s.suppressedHelpfulness = &prior
	s.Helpfulness = 0
}

// RestoreHelpfulness undoes a prior SuppressHelpfulness, if any.
func (s *Status) RestoreHelpfulness() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suppressedHelpfulness == nil {
		return
	}
	s.Helpfulness = *s.suppressedHelpfulness
	s.suppressedHelpfulness = nil
}
