// Package core wires the whole system into one aggregate: Event Bus,
// Working Context, Session Manager, State Queue, State Manager, Intent
// Segmenter, Module Coordinator, and System Loop, in that dependency
// order. It replaces the package-level singletons a module-scoped
// implementation would otherwise reach for — every collaborator here is
// constructor-injected, so a process can run more than one Core (the
// scenario tests in core_scenarios_test.go each build a fresh one) and
// nothing is shared across them except what's explicitly wired.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/uep-dev/uepd/internal/coordinator"
	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/event"
	"github.com/uep-dev/uepd/internal/modules"
	"github.com/uep-dev/uepd/internal/segmenter"
	"github.com/uep-dev/uepd/internal/session"
	"github.com/uep-dev/uepd/internal/statemanager"
	"github.com/uep-dev/uepd/internal/statequeue"
	"github.com/uep-dev/uepd/internal/storage"
	"github.com/uep-dev/uepd/internal/sysloop"
	"github.com/uep-dev/uepd/internal/workingcontext"
	"github.com/uep-dev/uepd/pkg/types"
)

// Options configures a Core. Store, Config, and Registry must be set by
// the caller; everything else has a sensible default so tests only need
// to fill in what the scenario under test actually exercises.
type Options struct {
	// Store backs every persisted-state shape (state queue, session
	// records, identities, sleep marker).
	Store *storage.Storage

	// Config supplies the workflow catalogue, session timeout, and the
	// mischief guard flag.
	Config *types.Config

	// Registry holds the capability modules (stt/nlp/llm/mem/tts/sys)
	// Core drives. Core never constructs modules itself — wiring real
	// vs. stand-in implementations is the caller's job (cmd/uepd for a
	// real process, test fixtures for scenario tests).
	Registry *modules.Registry

	// Tagger drives the Intent Segmenter. Defaults to
	// segmenter.NewKeywordTagger() when nil.
	Tagger modules.NLP

	// Workflow is the PATH_WORK dispatch target. Defaults to an
	// in-memory stand-in when nil.
	Workflow coordinator.WorkflowControl

	// DefaultIdentity is used when no identity has been declared or
	// resolved from the Working Context.
	DefaultIdentity coretypes.Identity

	// Bus overrides the main event bus. Defaults to event.NewBus().
	Bus *event.Bus

	// FrontendBus, if set, is exposed for UI-tick consumers; Core does
	// not publish to it directly (sysloop.Loop and the Coordinator only
	// ever see Bus), but it is kept here as the one place a process
	// wires its UI Bus alongside the main one per spec.md §6.
	FrontendBus *event.Bus
}

// Core is the fully wired aggregate.
type Core struct {
	bus         *event.Bus
	frontendBus *event.Bus

	wctx      *workingcontext.Context
	sessions  *session.Manager
	queue     *statequeue.Queue
	state     *statemanager.Manager
	seg       *segmenter.Segmenter
	registry  *modules.Registry
	coord     *coordinator.Coordinator
	loop      *sysloop.Loop
}

const defaultMaxSessionAge = 86400 * time.Second

// New builds a Core from opts, wiring every collaborator in the
// Event-Bus-first dependency order. It does not start the System Loop or
// the session timeout sweeper; call Start for that.
func New(opts Options) (*Core, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("core: Store is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("core: Config is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("core: Registry is required")
	}

	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus()
	}

	maxAge := defaultMaxSessionAge
	if opts.Config.MaxSessionAge > 0 {
		maxAge = time.Duration(opts.Config.MaxSessionAge) * time.Second
	}

	wctx := workingcontext.New()

	records := session.NewRecordStore(opts.Store, []string{"memory", "session_records"})
	sessions := session.New(records, maxAge, bus)

	queue := statequeue.New(opts.Store, []string{"memory", "state_queue"}, wctx, bus)

	state := statemanager.New(sessions, queue, wctx, opts.Store, opts.Config.MischiefEnabled, bus)
	state.SetSleepHooks(statemanager.SleepHooks{
		Unload: opts.Registry.UnloadAll,
		Reload: opts.Registry.ReloadAll,
	})

	tagger := opts.Tagger
	if tagger == nil {
		tagger = segmenter.NewKeywordTagger()
	}
	catalogue := make([]coretypes.WorkflowDefinition, len(opts.Config.WorkflowCatalogue))
	for i, wd := range opts.Config.WorkflowCatalogue {
		catalogue[i] = coretypes.WorkflowDefinition{
			Name:           wd.Name,
			Description:    wd.Description,
			Keywords:       wd.Keywords,
			StrongKeywords: wd.StrongKeywords,
			Mode:           coretypes.WorkMode(wd.Mode),
		}
	}
	seg := segmenter.New(tagger, catalogue)

	workflow := opts.Workflow
	if workflow == nil {
		workflow = coordinator.NewInMemoryWorkflowRunner()
	}

	coord := coordinator.New(sessions, state, wctx, opts.Registry, seg, workflow, opts.DefaultIdentity, bus)

	loop := sysloop.New(queue, state, wctx, coord, bus)

	return &Core{
		bus:         bus,
		frontendBus: opts.FrontendBus,
		wctx:        wctx,
		sessions:    sessions,
		queue:       queue,
		state:       state,
		seg:         seg,
		registry:    opts.Registry,
		coord:       coord,
		loop:        loop,
	}, nil
}

// Start loads persisted state, starts the session timeout sweeper, and
// starts the System Loop. ctx governs the loop's lifetime; call Stop (or
// cancel ctx) to shut down.
func (c *Core) Start(ctx context.Context) error {
	if err := c.queue.Load(ctx); err != nil {
		return fmt.Errorf("core: loading state queue: %w", err)
	}
	c.sessions.StartTimeoutSweeper(ctx)
	return c.loop.Start(ctx)
}

// Stop stops the System Loop and the session timeout sweeper, then
// closes the event bus. Safe to call once after Start.
func (c *Core) Stop() {
	c.loop.Stop()
	c.sessions.Stop()
	c.state.Close()
	_ = c.bus.Close()
	if c.frontendBus != nil {
		_ = c.frontendBus.Close()
	}
}

// Submit runs text through the Intent Segmenter and enqueues the
// resulting segments on the State Queue, the entry point for anything
// arriving through a transport (CLI stdin, HTTP handler, STT callback)
// rather than already being a typed QueueItem.
func (c *Core) Submit(text string) int {
	segments := c.seg.Segment(text)
	return c.queue.ProcessNLPIntents(segments)
}

// Bus returns the main event bus.
func (c *Core) Bus() *event.Bus { return c.bus }

// FrontendBus returns the UI-tick bus, or nil if none was configured.
func (c *Core) FrontendBus() *event.Bus { return c.frontendBus }

// WorkingContext returns the shared working context.
func (c *Core) WorkingContext() *workingcontext.Context { return c.wctx }

// Sessions returns the Session Manager.
func (c *Core) Sessions() *session.Manager { return c.sessions }

// Queue returns the State Queue.
func (c *Core) Queue() *statequeue.Queue { return c.queue }

// State returns the State Manager.
func (c *Core) State() *statemanager.Manager { return c.state }

// Registry returns the module registry.
func (c *Core) Registry() *modules.Registry { return c.registry }

// Coordinator returns the Module Coordinator.
func (c *Core) Coordinator() *coordinator.Coordinator { return c.coord }

// Loop returns the System Loop.
func (c *Core) Loop() *sysloop.Loop { return c.loop }
