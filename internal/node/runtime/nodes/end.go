package nodes

import (
	"context"
	"time"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// EndHandler emits the terminal marker the Executor uses to finalize
// traversal after an end node's (normally absent) outgoing edges.
type EndHandler struct{}

func (EndHandler) Execute(_ context.Context, _ *model.Context, _ model.Node) (model.NodeStatus, map[string]interface{}, error) {
	return model.NodeSuccess, map[string]interface{}{
		"completed":    true,
		"completed_at": time.Now().Format(time.RFC3339),
	}, nil
}

func init() {
	runtime.Register(model.NodeEnd, EndHandler{})
}
