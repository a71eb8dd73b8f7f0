// Package consoleio provides the TTY-facing stand-in capability modules
// (tts, sys) for an uepd process that has no real speech or system-action
// backend wired up — the same role the in-repo keyword tagger plays for
// nlp: good enough to drive the pipeline's tests and a headless CLI run,
// swappable for a real implementation behind the same interface.
package consoleio

import (
	"context"
	"fmt"
	"io"
)

// TTS writes synthesized text to an io.Writer instead of producing audio.
type TTS struct {
	Out io.Writer
}

func (t *TTS) Name() string { return "tts" }
func (t *TTS) Close() error { return nil }

func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	fmt.Fprintln(t.Out, text)
	return []byte(text), nil
}

// Sys executes no real system actions; it reports the action back as its
// own result so a workflow step calling it completes instead of hanging.
type Sys struct{}

func (s *Sys) Name() string { return "sys" }
func (s *Sys) Close() error { return nil }

func (s *Sys) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	return map[string]any{"action": action, "status": "noop"}, nil
}
