package features_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
	"github.com/chatflow/workflow-core/internal/workflow/features"
)

func buildSampleWorkflow(t *testing.T) *model.Workflow {
	t.Helper()
	w, err := model.NewWorkflow("greeter", "replies to every message")
	require.NoError(t, err)

	require.NoError(t, w.AddNode(model.Node{
		ID:   "start",
		Type: model.NodeEventStart,
		Name: "Start",
		Config: model.EventStartConfig{
			NodeCommon:  model.NodeCommon{Retry: 0},
			TriggerType: model.TriggerPersonMessage,
		},
	}))
	require.NoError(t, w.AddNode(model.Node{
		ID:   "reply",
		Type: model.NodeReplyMessage,
		Name: "Reply",
		Config: model.ReplyMessageConfig{
			NodeCommon: model.NodeCommon{Retry: 2, ErrorHandler: model.ErrorHandlerSkip},
			Content:    "hello!",
		},
	}))
	require.NoError(t, w.AddEdge(model.Edge{ID: "e1", Source: "start", Target: "reply"}))

	require.NoError(t, w.Update(model.Fields{TriggerTypes: []model.TriggerType{model.TriggerPersonMessage}}))
	return w
}

func TestSerializer_ExportImport_RoundTrips(t *testing.T) {
	s := features.NewSerializer()
	w := buildSampleWorkflow(t)

	data, err := s.Export(w)
	require.NoError(t, err)
	require.Contains(t, string(data), "workflow:")

	imported, warnings, err := s.Import(data)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, w.Name(), imported.Name())
	assert.Equal(t, w.Description(), imported.Description())
	require.Len(t, imported.Nodes(), 2)
	require.Len(t, imported.Edges(), 1)

	startNode, ok := imported.NodeByID("start")
	require.True(t, ok)
	cfg, ok := startNode.Config.(model.EventStartConfig)
	require.True(t, ok)
	assert.Equal(t, model.TriggerPersonMessage, cfg.TriggerType)

	replyNode, ok := imported.NodeByID("reply")
	require.True(t, ok)
	replyCfg, ok := replyNode.Config.(model.ReplyMessageConfig)
	require.True(t, ok)
	assert.Equal(t, "hello!", replyCfg.Content)
	assert.Equal(t, 2, replyCfg.Retry)
	assert.Equal(t, model.ErrorHandlerSkip, replyCfg.ErrorHandler)
}

func TestSerializer_Import_AcceptsBareWorkflowDocument(t *testing.T) {
	s := features.NewSerializer()
	doc := []byte(`
name: bare
status: draft
version: 1
nodes:
  - id: start
    type: event_start
    trigger_type: manual
edges: []
`)
	w, warnings, err := s.Import(doc)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "bare", w.Name())
	require.Len(t, w.Nodes(), 1)
}

func TestSerializer_Import_SkipsUnknownNodeTypeWithWarning(t *testing.T) {
	s := features.NewSerializer()
	doc := []byte(`
workflow:
  name: partial
  version: 1
  status: draft
  nodes:
    - id: start
      type: event_start
      trigger_type: manual
    - id: mystery
      type: not_a_real_type
  edges: []
`)
	w, warnings, err := s.Import(doc)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.True(t, strings.Contains(warnings[0], "mystery"))
	require.Len(t, w.Nodes(), 1)
}

func TestSerializer_Export_DeclaredKeyOrder(t *testing.T) {
	s := features.NewSerializer()
	w := buildSampleWorkflow(t)

	data, err := s.Export(w)
	require.NoError(t, err)
	out := string(data)

	keys := []string{"name:", "version:", "status:", "trigger_types:", "nodes:", "edges:"}
	lastIdx := -1
	for _, k := range keys {
		idx := strings.Index(out, k)
		require.Greater(t, idx, lastIdx, "expected %q to appear after previous key", k)
		lastIdx = idx
	}
}
