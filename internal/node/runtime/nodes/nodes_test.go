package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

func newTestContext() *model.Context {
	return model.NewContext(model.NewWorkflowID(), model.TriggerManual, map[string]interface{}{"content": "hello"}, nil)
}

func TestConditionHandler_TranslatesResultIntoBranch(t *testing.T) {
	rc := newTestContext()
	rc.RecordNodeOutput("cond", map[string]interface{}{"score": 42.0})

	node := model.Node{
		ID:   "cond",
		Type: model.NodeCondition,
		Config: model.ConditionConfig{
			Clauses: []model.Clause{{Field: "score", Operator: model.OpGreaterThan, Value: 10}},
			Logic:   model.LogicAnd,
		},
	}

	status, output, err := ConditionHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, model.NodeSuccess, status)
	assert.Equal(t, true, output["result"])
	assert.Equal(t, "true", output["branch"])
}

func TestConditionHandler_EmptyClausesIsFalse(t *testing.T) {
	rc := newTestContext()
	node := model.Node{ID: "cond", Type: model.NodeCondition, Config: model.ConditionConfig{}}

	_, output, err := ConditionHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, false, output["result"])
	assert.Equal(t, "false", output["branch"])
}

func TestConditionHandler_OrLogic(t *testing.T) {
	rc := newTestContext()
	rc.RecordNodeOutput("cond", map[string]interface{}{"a": "x", "b": "y"})
	node := model.Node{
		ID:   "cond",
		Type: model.NodeCondition,
		Config: model.ConditionConfig{
			Logic: model.LogicOr,
			Clauses: []model.Clause{
				{Field: "a", Operator: model.OpEquals, Value: "nope"},
				{Field: "b", Operator: model.OpEquals, Value: "y"},
			},
		},
	}

	_, output, err := ConditionHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, true, output["result"])
}

func TestSetVariableHandler_ExplicitValueWins(t *testing.T) {
	rc := newTestContext()
	rc.RecordNodeOutput("prior", map[string]interface{}{"ignored": true})
	node := model.Node{
		ID:   "set",
		Type: model.NodeSetVariable,
		Config: model.SetVariableConfig{
			VariableName: "counter",
			Value:        5.0,
			HasValue:     true,
		},
	}

	_, output, err := SetVariableHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, 5.0, output["value"])
	v, ok := rc.GetVariable("counter")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)
}

func TestSetVariableHandler_FallsBackToPriorOutput(t *testing.T) {
	rc := newTestContext()
	rc.RecordNodeOutput("prior", map[string]interface{}{"status": "ok"})
	node := model.Node{
		ID:     "set",
		Type:   model.NodeSetVariable,
		Config: model.SetVariableConfig{VariableName: "last", HasValue: false},
	}

	_, _, err := SetVariableHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	v, ok := rc.GetVariable("last")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"status": "ok"}, v)
}

func TestGetVariableHandler_FallsBackToDefault(t *testing.T) {
	rc := newTestContext()
	node := model.Node{
		ID:     "get",
		Type:   model.NodeGetVariable,
		Config: model.GetVariableConfig{VariableName: "missing", Default: "fallback"},
	}

	_, output, err := GetVariableHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, "fallback", output["value"])
}

func TestChatCommandBranchHandler_Command(t *testing.T) {
	rc := newTestContext()
	rc.TriggerData["content"] = "/help now"
	node := model.Node{ID: "branch", Type: model.NodeChatCommandBranch, Config: model.ChatCommandBranchConfig{}}

	_, output, err := ChatCommandBranchHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, "command", output["branch"])
	assert.Equal(t, "/help", output["command"])
}

func TestChatCommandBranchHandler_Chat(t *testing.T) {
	rc := newTestContext()
	rc.TriggerData["content"] = "just chatting"
	node := model.Node{ID: "branch", Type: model.NodeChatCommandBranch, Config: model.ChatCommandBranchConfig{}}

	_, output, err := ChatCommandBranchHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, "chat", output["branch"])
}

func TestJSONProcessorHandler_ExtractMissingYieldsNil(t *testing.T) {
	rc := newTestContext()
	rc.RecordNodeOutput("prior", map[string]interface{}{"user": map[string]interface{}{"name": "ada"}})
	node := model.Node{
		ID:     "json",
		Type:   model.NodeJSONProcessor,
		Config: model.JSONProcessorConfig{Operation: model.JSONExtract, Path: "user.missing"},
	}

	_, output, err := JSONProcessorHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Nil(t, output["value"])
}

func TestJSONProcessorHandler_ExtractFound(t *testing.T) {
	rc := newTestContext()
	rc.RecordNodeOutput("prior", map[string]interface{}{"user": map[string]interface{}{"name": "ada"}})
	node := model.Node{
		ID:     "json",
		Type:   model.NodeJSONProcessor,
		Config: model.JSONProcessorConfig{Operation: model.JSONExtract, Path: "user.name"},
	}

	_, output, err := JSONProcessorHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, "ada", output["value"])
}

func TestJSONProcessorHandler_Set(t *testing.T) {
	rc := newTestContext()
	rc.RecordNodeOutput("prior", map[string]interface{}{})
	node := model.Node{
		ID:     "json",
		Type:   model.NodeJSONProcessor,
		Config: model.JSONProcessorConfig{Operation: model.JSONSet, Path: "user.name", Value: "grace"},
	}

	_, output, err := JSONProcessorHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	user, ok := output["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "grace", user["name"])
}

func TestReplyMessageHandler_SubstitutesAndRecords(t *testing.T) {
	rc := model.NewContext(model.NewWorkflowID(), model.TriggerPersonMessage, nil, map[string]model.VariableDeclaration{
		"name": {Default: "world"},
	})
	node := model.Node{
		ID:     "reply",
		Type:   model.NodeReplyMessage,
		Config: model.ReplyMessageConfig{Content: "hi {{name}}"},
	}

	_, output, err := ReplyMessageHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, "hi world", output["content"])
	require.Len(t, rc.MessagesSent, 1)
	assert.Equal(t, "hi world", rc.MessagesSent[0].Content)
}

func TestEndHandler_EmitsCompleted(t *testing.T) {
	rc := newTestContext()
	node := model.Node{ID: "end", Type: model.NodeEnd, Config: model.EndConfig{}}

	_, output, err := EndHandler{}.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, true, output["completed"])
}
