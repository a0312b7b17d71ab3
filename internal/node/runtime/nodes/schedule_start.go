package nodes

import (
	"context"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// ScheduleStartHandler is the start node materialized for a Scheduled
// trigger execution (§4.D "for trigger_type = Scheduled, all schedule_start
// nodes are start nodes"). The cron firing itself is the scheduler's
// concern (internal/engine/scheduler.go); by the time this handler runs the
// executor is already committed to this node as a start node.
type ScheduleStartHandler struct{}

func (ScheduleStartHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.ScheduleStartConfig)
	return model.NodeSuccess, map[string]interface{}{
		"cron_expression": cfg.CronExpression,
		"timezone":        cfg.Timezone,
		"trigger_data":    rc.TriggerData,
	}, nil
}

func init() {
	runtime.Register(model.NodeScheduleStart, ScheduleStartHandler{})
}
