package segmenter

import (
	"strings"

	"github.com/uep-dev/uepd/internal/coretypes"
)

// Thresholds and multipliers, grounded on original_source's
// WorkflowValidator (spec.md §4.6's empirical constants).
const (
	highSimilarityThreshold  = 0.45
	lowSimilarityThreshold   = 0.15
	chatDegradationThreshold = 0.8

	highConfidenceMultiplier = 1.15
	lowConfidenceMultiplier  = 0.7
	maxConfidence            = 0.999
)

// stopWords are excluded from similarity word-sets (original_source's
// stop_words list, trimmed to the entries that matter for short
// workflow-name comparisons).
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "for": {}, "to": {}, "with": {}, "using": {},
	"in": {}, "on": {}, "at": {}, "by": {}, "from": {}, "of": {}, "and": {},
	"or": {}, "but": {}, "is": {}, "are": {}, "was": {}, "were": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "my": {}, "your": {}, "me": {}, "you": {},
	"it": {}, "some": {}, "please": {},
}

// synonyms is a small related-word table used to widen the direct word
// overlap used for similarity scoring.
var synonyms = map[string][]string{
	"music": {"media", "audio", "song", "playback", "play"},
	"media": {"music", "audio", "video", "playback"},
	"play":  {"playback", "start", "run", "music", "media"},
	"file":  {"document", "doc"},
	"document": {"file", "doc"},
	"time":  {"clock", "hour", "minute", "world", "get"},
	"clock": {"time"},
	"get":   {"show", "display", "check", "time", "weather"},
	"weather": {"forecast", "temperature", "climate", "get", "check", "show"},
	"forecast": {"weather", "temperature", "climate"},
	"translate": {"translation", "convert", "document"},
	"clean": {"clear", "remove", "delete"},
	"trash": {"bin", "recycle", "garbage", "clean"},
	"bin":   {"trash", "recycle", "clean"},
	"news":  {"headlines", "summary", "articles", "latest", "show"},
	"show":  {"display", "get", "check", "news", "tell"},
	"check": {"show", "display", "get", "weather", "tell"},
}

// Validator scores WORK segments against a catalogue of known workflows,
// adjusting confidence and possibly demoting a segment to CHAT.
type Validator struct {
	catalogue []coretypes.WorkflowDefinition
}

// NewValidator creates a validator against the given workflow catalogue,
// typically loaded from internal/config.
func NewValidator(catalogue []coretypes.WorkflowDefinition) *Validator {
	return &Validator{catalogue: catalogue}
}

// Validate scores every WORK segment in place, leaving non-WORK segments
// untouched. It mutates seg.Metadata, creating the map if absent.
func (v *Validator) Validate(segments []coretypes.IntentSegment) []coretypes.IntentSegment {
	if len(v.catalogue) == 0 {
		return segments
	}
	out := make([]coretypes.IntentSegment, len(segments))
	copy(out, segments)
	for i := range out {
		if out[i].Intent == coretypes.IntentWork {
			out[i] = v.validateSegment(out[i])
		}
	}
	return out
}

func ensureMetadata(seg *coretypes.IntentSegment) {
	if seg.Metadata == nil {
		seg.Metadata = make(map[string]any)
	}
}

func (v *Validator) validateSegment(seg coretypes.IntentSegment) coretypes.IntentSegment {
	text := strings.ToLower(seg.Text)

	var best *coretypes.WorkflowDefinition
	bestSimilarity := 0.0
	for i := range v.catalogue {
		wf := &v.catalogue[i]
		readableName := strings.ReplaceAll(wf.Name, "_", " ")
		score := maxFloat(similarity(text, strings.ToLower(readableName)), similarity(text, strings.ToLower(wf.Description)))
		if score > bestSimilarity {
			bestSimilarity = score
			best = wf
		}
	}

	hasStrongKeyword := best != nil && hasStrongKeywordMatch(text, best.StrongKeywords)
	originalIntent := seg.Intent
	originalConfidence := seg.Confidence

	switch {
	case bestSimilarity >= highSimilarityThreshold || hasStrongKeyword:
		seg.Confidence = minFloat(originalConfidence*highConfidenceMultiplier, maxConfidence)
		if best != nil && best.Mode != "" {
			ensureMetadata(&seg)
			previousWorkMode := originalMetadataWorkMode(seg.Metadata)
			workMode := best.Mode
			seg.Metadata["work_mode"] = workMode
			seg.Metadata["matched_workflow"] = best.Name
			if string(workMode) != previousWorkMode {
				seg.Metadata["workflow_mode_corrected"] = true
			}
		}

	case bestSimilarity < lowSimilarityThreshold:
		seg.Confidence = originalConfidence * lowConfidenceMultiplier
		if seg.Confidence < chatDegradationThreshold {
			seg.Intent = coretypes.IntentChat
			ensureMetadata(&seg)
			seg.Metadata["degraded_from_work"] = true
			seg.Metadata["original_intent"] = originalIntent
			seg.Metadata["degradation_reason"] = "no_matching_workflow"
		}

	default:
		if best != nil {
			ensureMetadata(&seg)
			seg.Metadata["potential_workflow"] = best.Name
			seg.Metadata["similarity"] = bestSimilarity
		}
	}

	return seg
}

func originalMetadataWorkMode(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata["work_mode"]; ok {
		if s, ok := v.(coretypes.WorkMode); ok {
			return string(s)
		}
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func hasStrongKeywordMatch(text string, strongKeywords []string) bool {
	if len(strongKeywords) == 0 {
		return false
	}
	words := tokenSet(text)
	for _, kw := range strongKeywords {
		if _, ok := words[strings.ToLower(kw)]; ok {
			return true
		}
	}
	return false
}

// similarity implements the improved short-text match used to compare a
// segment's text against a workflow's readable name/description: direct
// word overlap plus a synonym table, weighted by coverage of the
// segment's own words.
func similarity(text1, text2 string) float64 {
	words1 := filteredWords(text1)
	words2 := filteredWords(text2)
	if len(words1) == 0 || len(words2) == 0 {
		return 0
	}

	directMatches := 0
	synonymMatches := 0
	for w := range words1 {
		if _, ok := words2[w]; ok {
			directMatches++
			continue
		}
		for _, syn := range synonyms[w] {
			if _, ok := words2[syn]; ok {
				synonymMatches++
				break
			}
		}
	}

	totalMatches := directMatches + synonymMatches
	coverage := float64(totalMatches) / float64(len(words1))

	if coverage >= 0.5 {
		bonus := minFloat(float64(totalMatches)*0.1, 0.3)
		return minFloat(coverage+bonus, 1.0)
	}
	return coverage * 0.8
}

func filteredWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(strings.Trim(w, ".,!?;"))
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func tokenSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		out[strings.ToLower(strings.Trim(w, ".,!?;"))] = struct{}{}
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
