// Package workingcontext is the single cross-component hub of mutable
// runtime state: the reserved-key flat store and the accumulation-context
// mechanism that drives identity creation from repeated samples.
package workingcontext

import (
	"sync"

	"github.com/uep-dev/uepd/internal/coretypes"
)

// Reserved keys for the flat store's typed accessors.
const (
	keyCurrentIdentityID  = "current_identity_id"
	keyCurrentIdentity    = "current_identity"
	keyCurrentCycleIndex  = "current_cycle_index"
	keyDeclaredIdentityID = "declared_identity_id"
)

// Decision is the outcome an accumulation-context handler returns when a
// sample addition crosses the context's threshold.
type Decision string

const (
	DecisionCreateIdentity      Decision = "create_identity"
	DecisionContinueAccumulation Decision = "continue_accumulation"
	DecisionResetAccumulation    Decision = "reset_accumulation"
)

// DecisionHandler is invoked when an accumulation context crosses its
// sample-count threshold. It inspects the accumulated samples and returns
// the decision to apply.
type DecisionHandler func(ctx *AccumulationContext) Decision

// AccumulationContext accumulates samples of a given type tag until a
// threshold is crossed, at which point its registered handler decides
// whether to create an identity, keep accumulating, or reset.
type AccumulationContext struct {
	TypeTag   string
	Samples   []any
	Threshold int
	Metadata  map[string]any
}

// Context is the process-wide working context. Like the teacher's
// session processor, all mutable state lives behind one mutex; callers
// never hold it across a handler invocation.
type Context struct {
	mu sync.Mutex

	flat map[string]any

	accumulations map[string]*AccumulationContext
	handlers      map[string]DecisionHandler
}

// New creates an empty working context.
func New() *Context {
	return &Context{
		flat:          make(map[string]any),
		accumulations: make(map[string]*AccumulationContext),
		handlers:      make(map[string]DecisionHandler),
	}
}

// --- flat store, typed accessors for the reserved keys ---

func (c *Context) CurrentIdentityID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, _ := c.flat[keyCurrentIdentityID].(string)
	return s
}

func (c *Context) SetCurrentIdentityID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flat[keyCurrentIdentityID] = id
}

func (c *Context) CurrentIdentity() *coretypes.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, _ := c.flat[keyCurrentIdentity].(*coretypes.Identity)
	return id
}

func (c *Context) SetCurrentIdentity(identity *coretypes.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flat[keyCurrentIdentity] = identity
}

func (c *Context) CurrentCycleIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.flat[keyCurrentCycleIndex].(int)
	return n
}

func (c *Context) SetCurrentCycleIndex(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flat[keyCurrentCycleIndex] = n
}

// IncrementCycleIndex bumps the cycle index by one and returns the new value.
func (c *Context) IncrementCycleIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.flat[keyCurrentCycleIndex].(int)
	n++
	c.flat[keyCurrentCycleIndex] = n
	return n
}

func (c *Context) DeclaredIdentityID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, _ := c.flat[keyDeclaredIdentityID].(string)
	return s
}

func (c *Context) SetDeclaredIdentityID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flat[keyDeclaredIdentityID] = id
}

// Get/Set provide untyped access for any non-reserved key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.flat[key]
	return v, ok
}

func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flat[key] = value
}

// --- accumulation contexts ---

// RegisterHandler installs the decision handler invoked when an
// accumulation context of the given type tag crosses its threshold.
func (c *Context) RegisterHandler(typeTag string, handler DecisionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[typeTag] = handler
}

// EnsureAccumulation returns the named accumulation context, creating one
// with the given type tag and threshold if it doesn't yet exist.
func (c *Context) EnsureAccumulation(name, typeTag string, threshold int) *AccumulationContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, ok := c.accumulations[name]
	if !ok {
		ctx = &AccumulationContext{
			TypeTag:   typeTag,
			Threshold: threshold,
			Metadata:  make(map[string]any),
		}
		c.accumulations[name] = ctx
	}
	return ctx
}

// AddSample appends a sample to the named accumulation context. If the
// sample count reaches the threshold, the registered handler for the
// context's type tag is invoked (outside the lock) and its decision is
// returned; ResetAccumulation or CreateIdentity both clear the sample list.
func (c *Context) AddSample(name string, sample any) (Decision, bool) {
	c.mu.Lock()
	ctx, ok := c.accumulations[name]
	if !ok {
		c.mu.Unlock()
		return "", false
	}
	ctx.Samples = append(ctx.Samples, sample)
	crossed := len(ctx.Samples) >= ctx.Threshold
	handler := c.handlers[ctx.TypeTag]
	c.mu.Unlock()

	if !crossed || handler == nil {
		return "", false
	}

	decision := handler(ctx)

	c.mu.Lock()
	switch decision {
	case DecisionCreateIdentity, DecisionResetAccumulation:
		ctx.Samples = nil
	}
	c.mu.Unlock()

	return decision, true
}

// Reset clears an accumulation context's sample list without invoking its
// handler.
func (c *Context) Reset(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx, ok := c.accumulations[name]; ok {
		ctx.Samples = nil
	}
}
