package nodes

import (
	"context"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// SetVariableHandler resolves the value to store — the configured explicit
// value when present, otherwise the output of the most recently executed
// node — and records it with its runtime type name (§4.B).
type SetVariableHandler struct{}

func (SetVariableHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.SetVariableConfig)

	var value interface{}
	if cfg.HasValue {
		value = cfg.Value
	} else {
		value = map[string]interface{}(rc.LastOutput())
	}

	rc.SetVariable(cfg.VariableName, value)
	return model.NodeSuccess, map[string]interface{}{
		"variable_name": cfg.VariableName,
		"value":         value,
	}, nil
}

// GetVariableHandler returns the named variable's value, or default when
// undeclared.
type GetVariableHandler struct{}

func (GetVariableHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.GetVariableConfig)

	value, ok := rc.GetVariable(cfg.VariableName)
	if !ok {
		value = cfg.Default
	}
	return model.NodeSuccess, map[string]interface{}{
		"variable_name": cfg.VariableName,
		"value":         value,
	}, nil
}

func init() {
	runtime.Register(model.NodeSetVariable, SetVariableHandler{})
	runtime.Register(model.NodeGetVariable, GetVariableHandler{})
}
