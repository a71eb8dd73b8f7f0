package segmenter

import (
	"strings"

	"github.com/uep-dev/uepd/internal/modules"
)

// workKeywords is the general workflow-intent keyword set: action verbs
// and object nouns that, on their own, are strong enough signal that a
// token belongs to a WORK span. Grounded on original_source's
// WorkflowValidator._has_any_workflow_keyword general keyword table.
var workKeywords = map[string]struct{}{
	"read": {}, "write": {}, "create": {}, "generate": {}, "translate": {}, "analyze": {},
	"check": {}, "get": {}, "show": {}, "display": {}, "search": {}, "find": {}, "clean": {},
	"delete": {}, "remove": {}, "save": {}, "archive": {}, "backup": {}, "copy": {},
	"summarize": {}, "tag": {}, "recognize": {}, "extract": {},
	"file": {}, "document": {}, "image": {}, "code": {}, "script": {}, "weather": {},
	"news": {}, "time": {}, "clipboard": {}, "trash": {}, "bin": {}, "media": {}, "music": {},
}

// greetingKeywords mirrors IntentPostProcessor.GREETING_KEYWORDS.
var greetingKeywords = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "greetings": {},
	"good morning": {}, "good afternoon": {}, "good evening": {},
}

// KeywordTagger is a stand-in NLP tagger good enough to drive the
// post-processing and workflow-validation rules: it labels each token
// WORK if it appears in the workflow keyword table, CHAT otherwise. A
// real model-backed tagger satisfies the same modules.NLP interface.
type KeywordTagger struct{}

// NewKeywordTagger creates the keyword/regex stand-in tagger.
func NewKeywordTagger() *KeywordTagger { return &KeywordTagger{} }

func (t *KeywordTagger) Name() string { return "nlp" }
func (t *KeywordTagger) Close() error { return nil }

// Tag assigns a BIO label per whitespace-delimited token: "B-WORK" for the
// first token of a run of workflow-keyword tokens, "I-WORK" for
// continuations, "O" otherwise.
func (t *KeywordTagger) Tag(text string) []modules.TokenLabel {
	var labels []modules.TokenLabel
	pos := 0
	inWorkRun := false

	for _, tok := range strings.Fields(text) {
		start := strings.Index(text[pos:], tok) + pos
		end := start + len(tok)
		pos = end

		lower := strings.ToLower(strings.Trim(tok, ".,!?;"))
		_, isWork := workKeywords[lower]

		var label string
		switch {
		case isWork && !inWorkRun:
			label = "B-WORK"
			inWorkRun = true
		case isWork && inWorkRun:
			label = "I-WORK"
		default:
			label = "O"
			inWorkRun = false
		}

		labels = append(labels, modules.TokenLabel{Token: tok, Label: label, Start: start, End: end})
	}
	return labels
}
