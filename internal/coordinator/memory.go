package coordinator

import (
	"context"
	"fmt"

	"github.com/uep-dev/uepd/internal/modules"
)

// dispatchMemoryTool routes a function call against the Mem module by
// name. retrieve_snapshots/get_snapshot/search_timeline all resolve
// through RetrieveSnapshots; update_profile/store_observation through
// StoreObservation, matching the narrow two-method Mem interface.
func dispatchMemoryTool(ctx context.Context, mem modules.Mem, call *modules.FunctionCall, memoryToken string) (map[string]any, error) {
	switch call.Name {
	case "retrieve_snapshots", "get_snapshot", "search_timeline":
		limit := 20
		if v, ok := call.Arguments["limit"].(int); ok && v > 0 {
			limit = v
		}
		snapshots, err := mem.RetrieveSnapshots(ctx, memoryToken, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"snapshots": snapshots}, nil

	case "update_profile", "store_observation":
		observation, _ := call.Arguments["observation"].(string)
		if observation == "" {
			observation, _ = call.Arguments["value"].(string)
		}
		if err := mem.StoreObservation(ctx, memoryToken, observation); err != nil {
			return nil, err
		}
		return map[string]any{"stored": true}, nil

	default:
		return nil, fmt.Errorf("coordinator: unknown memory tool %q", call.Name)
	}
}
