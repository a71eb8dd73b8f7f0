package coordinator

import (
	"errors"

	"github.com/uep-dev/uepd/internal/coretypes"
)

// ErrToolTimeout is returned when a tool dispatch exceeds the
// per-tool timeout (spec.md §5, default 30s).
var ErrToolTimeout = errors.New("coordinator: tool call timed out")

// CycleInput carries the per-cycle decision the System Loop made before
// calling RunCycle: whether this cycle's content came from a promoted
// State Queue item (skipping the input layer) or from a fresh capture.
type CycleInput struct {
	// SkipInputLayer is true on a STATE_ADVANCED cycle: the promoted
	// item's own content stands in for a microphone capture.
	SkipInputLayer bool
	// Text is the promoted item's trigger content when SkipInputLayer,
	// ignored otherwise.
	Text string
	// NLPResult is the promoted item's segmenter output, carried as the
	// cycle's nlp_result when SkipInputLayer.
	NLPResult []coretypes.IntentSegment
}

// CycleResult is what one RunCycle call produced, for the System Loop's
// CYCLE_COMPLETED payload and tests.
type CycleResult struct {
	Text           string
	NLPResult      []coretypes.IntentSegment
	FunctionResult map[string]any
	SessionEnded   bool
	EndReason      coretypes.SessionEndReason
}

// layerError wraps a layer failure with the layer name, so the error
// path can both log which layer failed and end the session with reason
// "error" per spec.md §4.7.
type layerError struct {
	layer string
	err   error
}

func (e *layerError) Error() string { return "coordinator: " + e.layer + " layer: " + e.err.Error() }
func (e *layerError) Unwrap() error { return e.err }
