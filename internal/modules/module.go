// Package modules defines the capability-module boundary: the set of
// external collaborators (speech-to-text, natural-language tagging,
// language-model reasoning, memory retrieval, text-to-speech, system
// actions) the core consumes only through narrow Go interfaces, plus the
// Registry that tracks which named modules are currently loaded — the
// mechanism SLEEP/WAKE uses to unload and reload them.
package modules

import (
	"context"
	"fmt"
	"sync"

	"github.com/uep-dev/uepd/internal/coretypes"
)

// Module is the minimal lifecycle every capability module satisfies.
type Module interface {
	// Name is the registration key (one of "stt", "nlp", "llm", "mem",
	// "tts", "sys", "ui", "ani", "mov" per spec.md §6).
	Name() string
	// Close releases any resources the module holds. Called on SLEEP
	// unload; implementations must make a subsequent re-register safe.
	Close() error
}

// Factory constructs a fresh Module instance, used by Registry.Reload to
// rebuild a module that was unloaded for SLEEP.
type Factory func() (Module, error)

// TokenLabel is one token's BIO label, the unit the NLP tagger emits.
type TokenLabel struct {
	Token string
	Label string // e.g. "B-WORK", "I-WORK", "O"
	Start int
	End   int
}

// STT converts captured audio into text for the input layer.
type STT interface {
	Module
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// NLP tags raw text with per-token BIO labels, the segmenter's only
// dependency on a real model. The in-repo stand-in implementation lives
// in internal/segmenter.
type NLP interface {
	Module
	Tag(text string) []TokenLabel
}

// LLM is the reasoning module: prompt + mode + scoped tools in, a
// per-mode structured response out (spec.md §4.9, §6).
type LLM interface {
	Module
	Respond(ctx context.Context, req ReasoningRequest) (ReasoningResponse, error)
}

// ReasoningRequest is what the Module Coordinator sends the reasoning
// module for one processing-layer turn.
type ReasoningRequest struct {
	Mode           coretypes.Mode
	Prompt         string
	Tools          []ToolSpec
	ToolChoiceMode string // "ANY" or "AUTO"
	SessionID      string
}

// ToolSpec is one callable function in a scoped tool catalogue.
type ToolSpec struct {
	Name        string
	Description string
	Path        coretypes.ToolPath
	Parameters  map[string]any // JSON schema
}

// ReasoningResponse is the reasoning module's structured reply. Exactly
// one of Text-bearing fields or FunctionCall is populated per mode.
type ReasoningResponse struct {
	Mode         coretypes.Mode
	Text         string
	Confidence   float64
	FunctionCall *FunctionCall
	StatusUpdates *coretypes.StatusUpdates
	SessionControl *SessionControl
	Raw          map[string]any // full decoded per-mode payload
}

// FunctionCall is a tool-call the reasoning module asked the Coordinator
// to dispatch.
type FunctionCall struct {
	Name      string
	Arguments map[string]any
}

// SessionControl is the optional should-end-session signal a chat/work
// response may carry.
type SessionControl struct {
	ShouldEndSession bool
	EndReason        coretypes.SessionEndReason
	Confidence       float64
}

// Mem is the memory retrieval/storage module, partitioned per memory
// token (spec.md §3).
type Mem interface {
	Module
	RetrieveSnapshots(ctx context.Context, memoryToken string, limit int) ([]map[string]any, error)
	StoreObservation(ctx context.Context, memoryToken string, observation string) error
}

// TTS synthesizes text into audio for the output layer.
type TTS interface {
	Module
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Sys executes side-effecting system actions a workflow step calls for.
type Sys interface {
	Module
	Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error)
}

// Registry tracks the currently-loaded named modules. Grounded on the
// teacher's provider.Registry: one RWMutex-guarded map keyed by a string
// id, register/get/list, generalized here with Unload/Reload for the
// SLEEP/WAKE module-lifecycle contract.
type Registry struct {
	mu        sync.RWMutex
	modules   map[string]Module
	factories map[string]Factory
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:   make(map[string]Module),
		factories: make(map[string]Factory),
	}
}

// RegisterModule installs m under name, remembering factory so Reload can
// rebuild it later.
func (r *Registry) RegisterModule(name string, m Module, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = m
	if factory != nil {
		r.factories[name] = factory
	}
}

// Get retrieves a loaded module by name.
func (r *Registry) Get(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("modules: %q not loaded", name)
	}
	return m, nil
}

// List returns the names of every currently-loaded module.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}

// Unload closes and removes the named module, keeping its factory so
// Reload can bring it back. Used by the SLEEP side effect.
func (r *Registry) Unload(name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.modules, name)
	r.mu.Unlock()
	return m.Close()
}

// UnloadAll unloads every currently-loaded module.
func (r *Registry) UnloadAll() error {
	for _, name := range r.List() {
		if err := r.Unload(name); err != nil {
			return fmt.Errorf("modules: unload %q: %w", name, err)
		}
	}
	return nil
}

// Reload rebuilds and re-registers the named module from its remembered
// factory. Used by the WAKE side effect; WAKE_READY must only publish
// after every previously-loaded module has been reloaded this way.
func (r *Registry) Reload(name string) error {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("modules: no factory registered for %q", name)
	}
	m, err := factory()
	if err != nil {
		return fmt.Errorf("modules: reload %q: %w", name, err)
	}
	r.mu.Lock()
	r.modules[name] = m
	r.mu.Unlock()
	return nil
}

// ReloadAll rebuilds every module that has a remembered factory.
func (r *Registry) ReloadAll() error {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	for _, name := range names {
		if err := r.Reload(name); err != nil {
			return err
		}
	}
	return nil
}
