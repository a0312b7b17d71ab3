package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
	"github.com/chatflow/workflow-core/pkg/expression"
)

// JSONProcessorHandler implements the four json_processor operations against
// the Data Input Rule's input (the most recently executed node's output).
type JSONProcessorHandler struct{}

func (JSONProcessorHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, ok := node.Config.(model.JSONProcessorConfig)
	if !ok {
		return model.NodeFailed, nil, fmt.Errorf("json_processor: node %s has mismatched config type", node.ID)
	}
	input := rc.LastOutput()

	switch cfg.Operation {
	case model.JSONExtract:
		v, _ := expression.GetPath(map[string]interface{}(input), cfg.Path)
		return model.NodeSuccess, map[string]interface{}{"value": v}, nil

	case model.JSONSet:
		container := make(map[string]interface{}, len(input))
		for k, v := range input {
			container[k] = v
		}
		mutated := expression.SetPath(container, cfg.Path, cfg.Value)
		return model.NodeSuccess, mutated, nil

	case model.JSONSerialize:
		raw, err := json.Marshal(map[string]interface{}(input))
		if err != nil {
			return model.NodeFailed, nil, fmt.Errorf("json_processor: serialize: %w", err)
		}
		return model.NodeSuccess, map[string]interface{}{"text": string(raw)}, nil

	case model.JSONDeserialize:
		text, _ := input["text"].(string)
		var parsed interface{}
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return model.NodeFailed, nil, fmt.Errorf("json_processor: deserialize: %w", err)
		}
		if obj, ok := parsed.(map[string]interface{}); ok {
			return model.NodeSuccess, obj, nil
		}
		return model.NodeSuccess, map[string]interface{}{"value": parsed}, nil

	default:
		return model.NodeFailed, nil, fmt.Errorf("json_processor: node %s has unknown operation %q", node.ID, cfg.Operation)
	}
}

func init() {
	runtime.Register(model.NodeJSONProcessor, JSONProcessorHandler{})
}
