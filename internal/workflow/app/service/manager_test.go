package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow/workflow-core/internal/adapters/messaging"
	"github.com/chatflow/workflow-core/internal/adapters/persistence"
	"github.com/chatflow/workflow-core/internal/node/runtime"
	_ "github.com/chatflow/workflow-core/internal/node/runtime/nodes"
	"github.com/chatflow/workflow-core/internal/workflow/app/service"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

func newTestManager(t *testing.T) (*service.Manager, *messaging.InMemorySink) {
	t.Helper()
	sink := messaging.NewInMemorySink()
	m := service.NewManager(persistence.NewInMemoryAdapter(), runtime.Default(), nil, sink, nil)
	return m, sink
}

func addReplyWorkflow(t *testing.T, m *service.Manager) *model.Workflow {
	t.Helper()
	ctx := context.Background()
	w, err := m.Create(ctx, "greeter", "")
	require.NoError(t, err)

	nodes := []model.Node{
		{
			ID: "start", Type: model.NodeEventStart, Name: "Start",
			Config: model.EventStartConfig{TriggerType: model.TriggerPersonMessage},
		},
		{
			ID: "reply", Type: model.NodeReplyMessage, Name: "Reply",
			Config: model.ReplyMessageConfig{Content: "hi {{name}}"},
		},
	}
	edges := []model.Edge{{ID: "e1", Source: "start", Target: "reply"}}
	variables := map[string]model.VariableDeclaration{"name": {Default: "world"}}

	updated, err := m.Update(ctx, w.ID(), model.Fields{
		Nodes: nodes, Edges: edges, Variables: variables,
		TriggerTypes: []model.TriggerType{model.TriggerPersonMessage},
	})
	require.NoError(t, err)
	require.NoError(t, m.Activate(ctx, updated.ID()))
	return updated
}

func TestManager_CreateActivateExecute_TrivialReply(t *testing.T) {
	m, sink := newTestManager(t)
	w := addReplyWorkflow(t, m)

	result, err := m.ExecuteWorkflow(context.Background(), w.ID(), model.TriggerPersonMessage, map[string]interface{}{"content": "anything"})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSucceeded, result.Status)
	require.Len(t, sink.Sent, 1)
	assert.Equal(t, "hi world", sink.Sent[0].Content)
}

func TestManager_Update_VersionMonotonicity(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	w, err := m.Create(ctx, "wf", "")
	require.NoError(t, err)
	before := w.Version()

	newName := "renamed"
	updated, err := m.Update(ctx, w.ID(), model.Fields{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, before+1, updated.Version())
	assert.Equal(t, "renamed", updated.Name())
}

func TestManager_Delete_CascadesExecutions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	w := addReplyWorkflow(t, m)

	_, err := m.ExecuteWorkflow(ctx, w.ID(), model.TriggerPersonMessage, nil)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, w.ID()))
	_, ok := m.Get(w.ID())
	assert.False(t, ok)
}

func TestManager_ExportImport_RoundTrips(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	w := addReplyWorkflow(t, m)

	doc, err := m.Export(ctx, w.ID())
	require.NoError(t, err)

	imported, warnings, err := m.Import(ctx, doc)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, w.Name(), imported.Name())
	require.Len(t, imported.Nodes(), 2)
}

func TestManager_HandleMessageEvent_ExecutesBoundActiveWorkflows(t *testing.T) {
	m, sink := newTestManager(t)
	ctx := context.Background()
	w := addReplyWorkflow(t, m)

	botID := "bot-1"
	require.NoError(t, m.BindBot(ctx, w.ID(), &botID))

	results, err := m.HandleMessageEvent(ctx, botID, "person_message", map[string]interface{}{"content": "hey"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.ExecutionSucceeded, results[0].Status)
	require.Len(t, sink.Sent, 1)
}

func TestManager_DebugWorkflow_RunsToCompletionWithoutBreakpoints(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	w := addReplyWorkflow(t, m)

	session, err := m.DebugWorkflow(ctx, w.ID(), model.TriggerPersonMessage, nil, nil, false)
	require.NoError(t, err)
	<-session.Done
	require.NoError(t, session.Err)
	assert.Equal(t, model.ExecutionSucceeded, session.Result.Status)
}
