// Package segmenter implements the Intent Segmenter and Workflow
// Validator: it turns raw text into a list of coretypes.IntentSegment
// ready for statequeue.Queue.ProcessNLPIntents.
package segmenter

import (
	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/modules"
)

var intentMap = map[string]coretypes.IntentType{
	intentWork:    coretypes.IntentWork,
	intentChat:    coretypes.IntentChat,
	intentCall:    coretypes.IntentCall,
	intentUnknown: coretypes.IntentUnknown,
}

// Segmenter turns raw input text into intent segments: BIO-tag via an
// modules.NLP tagger, post-process (merge/classify), then validate WORK
// segments against the workflow catalogue.
type Segmenter struct {
	tagger    modules.NLP
	validator *Validator
}

// New creates a Segmenter. tagger is typically a real model-backed
// implementation of modules.NLP; catalogue is the static workflow list
// the Validator scores WORK segments against.
func New(tagger modules.NLP, catalogue []coretypes.WorkflowDefinition) *Segmenter {
	return &Segmenter{
		tagger:    tagger,
		validator: NewValidator(catalogue),
	}
}

// Segment runs the full pipeline: tag, post-process, validate.
func (s *Segmenter) Segment(text string) []coretypes.IntentSegment {
	labels := s.tagger.Tag(text)
	raw := rawSegmentsFromLabels(text, labels)
	raw = postProcess(raw, text)

	segments := make([]coretypes.IntentSegment, 0, len(raw))
	for _, r := range raw {
		intent, ok := intentMap[r.intent]
		if !ok {
			intent = coretypes.IntentUnknown
		}
		segments = append(segments, coretypes.IntentSegment{
			Text:       r.text,
			Intent:     intent,
			Confidence: r.confidence,
			Metadata:   r.metadata,
		})
	}

	return s.validator.Validate(segments)
}
