package coordinator

import (
	"fmt"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/modules"
)

// chatTools is PATH_CHAT's fixed catalogue (spec.md §4.7.1): memory
// retrieval/write tools only, no workflow control.
var chatTools = []modules.ToolSpec{
	{Name: "retrieve_snapshots", Description: "Retrieve recent memory snapshots for the current identity.", Path: coretypes.PathChat},
	{Name: "get_snapshot", Description: "Fetch one memory snapshot by id.", Path: coretypes.PathChat},
	{Name: "search_timeline", Description: "Search the current identity's memory timeline.", Path: coretypes.PathChat},
	{Name: "update_profile", Description: "Update a field on the current identity's profile.", Path: coretypes.PathChat},
	{Name: "store_observation", Description: "Store a free-text observation under the current identity's memory token.", Path: coretypes.PathChat},
}

// workTools is PATH_WORK's fixed catalogue: workflow control only, no
// memory tools.
var workTools = []modules.ToolSpec{
	{Name: "start_workflow", Description: "Start a new workflow run for the active WORK session.", Path: coretypes.PathWork},
	{Name: "get_workflow_status", Description: "Report the status of the active workflow run.", Path: coretypes.PathWork},
	{Name: "review_step", Description: "Present the current workflow step for review.", Path: coretypes.PathWork},
	{Name: "approve_step", Description: "Approve the current workflow step and advance.", Path: coretypes.PathWork},
	{Name: "modify_step", Description: "Modify the parameters of the current workflow step.", Path: coretypes.PathWork},
	{Name: "cancel_workflow", Description: "Cancel the active workflow run.", Path: coretypes.PathWork},
	{Name: "provide_workflow_input", Description: "Supply input a workflow step is waiting on.", Path: coretypes.PathWork},
}

// memoryToolNames and workflowToolNames partition dispatch: a function
// call is routed to the memory store or the workflow control handler by
// name, never by path alone, so a caller that builds a custom catalogue
// still dispatches correctly.
var memoryToolNames = toolNameSet(chatTools)
var workflowToolNames = toolNameSet(workTools)

func toolNameSet(specs []modules.ToolSpec) map[string]struct{} {
	set := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		set[s.Name] = struct{}{}
	}
	return set
}

// catalogueForPath returns the fixed tool catalogue for a path.
func catalogueForPath(path coretypes.ToolPath) []modules.ToolSpec {
	switch path {
	case coretypes.PathChat:
		return chatTools
	case coretypes.PathWork:
		return workTools
	default:
		return nil
	}
}

// errWrongPath reports a tool call against the catalogue it isn't in,
// enforced before dispatch per spec.md §4.7.1.
type errWrongPath struct {
	tool string
	path coretypes.ToolPath
}

func (e *errWrongPath) Error() string {
	return fmt.Sprintf("coordinator: tool %q is not in the %s catalogue", e.tool, e.path)
}

func enforcePath(path coretypes.ToolPath, toolName string) error {
	for _, spec := range catalogueForPath(path) {
		if spec.Name == toolName {
			return nil
		}
	}
	return &errWrongPath{tool: toolName, path: path}
}
