package nodes

import (
	"context"
	"fmt"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// ToolHost is the opaque external tool invocation boundary (§6
// "invoke_tool(tool_id, parameters) -> (ok, result | error)").
type ToolHost interface {
	InvokeTool(ctx context.Context, toolID string, parameters map[string]interface{}) (map[string]interface{}, error)
}

// ToolActionHandler delegates to a ToolHost; the host's return value becomes
// the node's output verbatim.
type ToolActionHandler struct {
	Host ToolHost
}

func NewToolActionHandler(host ToolHost) *ToolActionHandler {
	return &ToolActionHandler{Host: host}
}

func (h *ToolActionHandler) Execute(ctx context.Context, _ *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.ToolActionConfig)
	if h.Host == nil {
		return model.NodeFailed, nil, fmt.Errorf("tool_action: node %s has no tool host configured", node.ID)
	}

	result, err := h.Host.InvokeTool(ctx, cfg.ToolID, cfg.Parameters)
	if err != nil {
		return model.NodeFailed, result, fmt.Errorf("tool_action: %w", err)
	}
	return model.NodeSuccess, result, nil
}

func init() {
	runtime.Register(model.NodeToolAction, NewToolActionHandler(nil))
}
