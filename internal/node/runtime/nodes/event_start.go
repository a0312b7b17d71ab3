package nodes

import (
	"context"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// EventStartHandler is the start node for message-driven triggers
// (person_message, group_message, manual, api). It never runs a condition
// of its own: the Executor only ever enqueues it as a start node once its
// config.trigger_type has already matched the incoming trigger.
type EventStartHandler struct{}

func (EventStartHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.EventStartConfig)
	return model.NodeSuccess, map[string]interface{}{
		"trigger":      string(rc.Trigger),
		"trigger_data": rc.TriggerData,
		"filters":      cfg.EventFilters,
	}, nil
}

func init() {
	runtime.Register(model.NodeEventStart, EventStartHandler{})
}
