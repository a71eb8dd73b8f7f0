package coordinator

import (
	"fmt"
	"sync"

	"github.com/uep-dev/uepd/internal/modules"
)

// WorkflowControl is the PATH_WORK function-call target: the workflow
// runner a start_workflow/review_step/... call dispatches into. The
// Coordinator depends only on this narrow interface, matching the
// Module boundary's "external collaborator behind an interface" shape
// for every other capability.
type WorkflowControl interface {
	StartWorkflow(sessionID string, params map[string]any) (map[string]any, error)
	GetWorkflowStatus(sessionID string) (map[string]any, error)
	ReviewStep(sessionID string) (map[string]any, error)
	ApproveStep(sessionID string, params map[string]any) (map[string]any, error)
	ModifyStep(sessionID string, params map[string]any) (map[string]any, error)
	CancelWorkflow(sessionID string) (map[string]any, error)
	ProvideWorkflowInput(sessionID string, params map[string]any) (map[string]any, error)

	// IsMidStep reports whether sessionID has a workflow step awaiting
	// review/approval, the condition that forces tool-choice mode to
	// AUTO instead of ANY (spec.md §4.7).
	IsMidStep(sessionID string) bool
}

// workflowRun tracks one session's in-flight step state for the
// in-memory runner.
type workflowRun struct {
	status       string
	currentStep  int
	stepParams   map[string]any
	awaitingStep bool
}

// InMemoryWorkflowRunner is a stand-in WorkflowControl good enough to
// drive the Coordinator's dispatch and path-enforcement tests: it tracks
// one linear step counter per session rather than executing a real
// workflow engine.
type InMemoryWorkflowRunner struct {
	mu   sync.Mutex
	runs map[string]*workflowRun
}

// NewInMemoryWorkflowRunner creates an empty stand-in runner.
func NewInMemoryWorkflowRunner() *InMemoryWorkflowRunner {
	return &InMemoryWorkflowRunner{runs: make(map[string]*workflowRun)}
}

func (r *InMemoryWorkflowRunner) run(sessionID string) *workflowRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[sessionID]
	if !ok {
		run = &workflowRun{status: "pending"}
		r.runs[sessionID] = run
	}
	return run
}

func (r *InMemoryWorkflowRunner) StartWorkflow(sessionID string, params map[string]any) (map[string]any, error) {
	r.mu.Lock()
	r.runs[sessionID] = &workflowRun{status: "running", currentStep: 1, awaitingStep: true}
	r.mu.Unlock()
	return map[string]any{"status": "running", "step": 1}, nil
}

func (r *InMemoryWorkflowRunner) GetWorkflowStatus(sessionID string) (map[string]any, error) {
	run := r.run(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{"status": run.status, "step": run.currentStep}, nil
}

func (r *InMemoryWorkflowRunner) ReviewStep(sessionID string) (map[string]any, error) {
	run := r.run(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{"step": run.currentStep, "awaiting": run.awaitingStep}, nil
}

func (r *InMemoryWorkflowRunner) ApproveStep(sessionID string, params map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[sessionID]
	if !ok || !run.awaitingStep {
		return nil, fmt.Errorf("coordinator: no step awaiting approval for session %s", sessionID)
	}
	run.currentStep++
	run.awaitingStep = true
	return map[string]any{"status": "running", "step": run.currentStep}, nil
}

func (r *InMemoryWorkflowRunner) ModifyStep(sessionID string, params map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[sessionID]
	if !ok {
		return nil, fmt.Errorf("coordinator: no active run for session %s", sessionID)
	}
	run.stepParams = params
	return map[string]any{"status": "running", "step": run.currentStep, "params": params}, nil
}

func (r *InMemoryWorkflowRunner) CancelWorkflow(sessionID string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[sessionID]
	if !ok {
		return nil, fmt.Errorf("coordinator: no active run for session %s", sessionID)
	}
	run.status = "cancelled"
	run.awaitingStep = false
	return map[string]any{"status": "cancelled"}, nil
}

func (r *InMemoryWorkflowRunner) IsMidStep(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[sessionID]
	return ok && run.awaitingStep
}

func (r *InMemoryWorkflowRunner) ProvideWorkflowInput(sessionID string, params map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[sessionID]
	if !ok {
		return nil, fmt.Errorf("coordinator: no active run for session %s", sessionID)
	}
	run.awaitingStep = false
	return map[string]any{"status": run.status, "accepted": params}, nil
}

// dispatchWorkflowTool routes a function call against the WorkflowControl
// interface by name.
func dispatchWorkflowTool(wf WorkflowControl, call *modules.FunctionCall, sessionID string) (map[string]any, error) {
	switch call.Name {
	case "start_workflow":
		return wf.StartWorkflow(sessionID, call.Arguments)
	case "get_workflow_status":
		return wf.GetWorkflowStatus(sessionID)
	case "review_step":
		return wf.ReviewStep(sessionID)
	case "approve_step":
		return wf.ApproveStep(sessionID, call.Arguments)
	case "modify_step":
		return wf.ModifyStep(sessionID, call.Arguments)
	case "cancel_workflow":
		return wf.CancelWorkflow(sessionID)
	case "provide_workflow_input":
		return wf.ProvideWorkflowInput(sessionID, call.Arguments)
	default:
		return nil, fmt.Errorf("coordinator: unknown workflow tool %q", call.Name)
	}
}
