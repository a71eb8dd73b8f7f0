package segmenter

import (
	"strings"

	"github.com/uep-dev/uepd/internal/modules"
)

// rawSegmentsFromLabels groups consecutive same-intent token labels into
// segments. A run of "B-WORK"/"I-WORK" labels becomes one "work" segment;
// everything else ("O") becomes one "chat" segment, since the stand-in
// tagger has no other vocabulary — a trained tagger would emit CALL/
// RESPONSE labels directly and this grouping step would pass them through
// unchanged.
func rawSegmentsFromLabels(text string, labels []modules.TokenLabel) []rawSegment {
	if len(labels) == 0 {
		return nil
	}

	var segments []rawSegment
	i := 0
	for i < len(labels) {
		intent := intentFromLabel(labels[i].Label)
		j := i + 1
		for j < len(labels) && intentFromLabel(labels[j].Label) == intent {
			j++
		}
		start := labels[i].Start
		end := labels[j-1].End
		confidence := defaultChatConfidence
		if intent == intentWork {
			confidence = defaultWorkConfidence
		}
		segments = append(segments, rawSegment{
			text:       text[start:end],
			intent:     intent,
			start:      start,
			end:        end,
			confidence: confidence,
		})
		i = j
	}
	return segments
}

func intentFromLabel(label string) string {
	if strings.HasSuffix(label, "-WORK") {
		return intentWork
	}
	return intentChat
}

// postProcess applies the short-segment reclassification and adjacency
// merge rules of spec.md §4.6, grounded on original_source's
// IntentPostProcessor.process.
func postProcess(segments []rawSegment, originalText string) []rawSegment {
	if len(segments) == 0 {
		return segments
	}
	segments = handleShortSegments(segments)
	segments = mergeSegments(segments, originalText)
	return segments
}

// handleShortSegments reclassifies sub-three-character segments: a known
// greeting token becomes CALL, anything else becomes UNKNOWN (a
// candidate for merging into a neighbor).
func handleShortSegments(segments []rawSegment) []rawSegment {
	out := make([]rawSegment, len(segments))
	copy(out, segments)
	for i := range out {
		text := strings.TrimSpace(out[i].text)
		if len(text) >= shortSegmentLength {
			continue
		}
		if _, ok := greetingKeywords[strings.ToLower(text)]; ok {
			out[i].intent = intentCall
		} else {
			out[i].intent = intentUnknown
		}
	}
	return out
}

// mergeSegments merges adjacent segments sharing an intent, or separated
// only by an UNKNOWN run, unless a hard boundary punctuation mark sits
// between them.
func mergeSegments(segments []rawSegment, originalText string) []rawSegment {
	if len(segments) <= 1 {
		return segments
	}

	var merged []rawSegment
	i := 0
	for i < len(segments) {
		group := []rawSegment{segments[i]}
		j := i + 1
		for j < len(segments) && shouldMerge(group, segments[j], originalText) {
			group = append(group, segments[j])
			j++
		}
		if len(group) > 1 {
			merged = append(merged, mergeGroup(group, originalText))
		} else {
			merged = append(merged, group[0])
		}
		i = j
	}
	return merged
}

func shouldMerge(group []rawSegment, next rawSegment, originalText string) bool {
	last := group[len(group)-1]

	if _, ok := hardBoundaryMark(originalText, last.start, next.start); ok {
		return false
	}

	if last.intent == next.intent {
		return true
	}
	if next.intent == intentUnknown {
		return true
	}

	intents := map[string]struct{}{}
	for _, seg := range group {
		intents[seg.intent] = struct{}{}
	}
	return len(intents) > 1
}

// hardBoundaryMark scans backward from end over whitespace looking for a
// hard-boundary punctuation mark. Punctuation almost always attaches to
// the preceding word's token ("bin." not "bin ."), so it lives inside a
// segment's own span rather than in the gap between two segments.
func hardBoundaryMark(text string, start, end int) (byte, bool) {
	for i := end - 1; i >= start; i-- {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' {
			continue
		}
		_, ok := hardBoundaryPunctuation[c]
		return c, ok
	}
	return 0, false
}

// mergeGroup collapses a merge group into one segment, choosing the
// dominant intent (most frequent, ties broken by first occurrence) and
// averaging confidence.
func mergeGroup(group []rawSegment, originalText string) rawSegment {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for idx, seg := range group {
		if _, ok := firstSeen[seg.intent]; !ok {
			firstSeen[seg.intent] = idx
		}
		counts[seg.intent]++
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	dominant := ""
	earliest := len(group)
	for intent, c := range counts {
		if c == maxCount && firstSeen[intent] < earliest {
			dominant = intent
			earliest = firstSeen[intent]
		}
	}

	var total float64
	for _, seg := range group {
		total += seg.confidence
	}
	avg := total / float64(len(group))

	return rawSegment{
		text:       originalText[group[0].start:group[len(group)-1].end],
		intent:     dominant,
		start:      group[0].start,
		end:        group[len(group)-1].end,
		confidence: avg,
	}
}
