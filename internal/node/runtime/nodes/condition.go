package nodes

import (
	"context"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
	"github.com/chatflow/workflow-core/pkg/expression"
)

// ConditionHandler evaluates an ordered clause list against this node's own
// prior output slot (rc.NodeOutputs[node.ID], or {} when empty), combines
// results with and/or, and emits {result: bool}.
// Because branch selection (§4.D) only ever looks at an output's "branch"
// key, the handler also emits branch: "true"/"false" — the fix the original
// condition/branch coupling needed to be usable as a branching source.
type ConditionHandler struct{}

func (ConditionHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.ConditionConfig)
	input := rc.NodeOutputs[node.ID]
	if input == nil {
		input = map[string]interface{}{}
	}

	var result bool
	if len(cfg.Clauses) == 0 {
		result = false
	} else {
		switch cfg.Logic {
		case model.LogicOr:
			result = false
			for _, clause := range cfg.Clauses {
				fieldValue, _ := expression.GetPath(input, clause.Field)
				if model.EvaluateClause(fieldValue, clause.Operator, clause.Value) {
					result = true
					break
				}
			}
		default: // and
			result = true
			for _, clause := range cfg.Clauses {
				fieldValue, _ := expression.GetPath(input, clause.Field)
				if !model.EvaluateClause(fieldValue, clause.Operator, clause.Value) {
					result = false
					break
				}
			}
		}
	}

	branch := "false"
	if result {
		branch = "true"
	}

	return model.NodeSuccess, map[string]interface{}{
		"result": result,
		"branch": branch,
	}, nil
}

func init() {
	runtime.Register(model.NodeCondition, ConditionHandler{})
}
