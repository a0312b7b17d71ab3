package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow/workflow-core/internal/adapters/persistence"
	"github.com/chatflow/workflow-core/internal/workflow/domain/repository"
)

func TestInMemoryAdapter_InsertAndGetWorkflow(t *testing.T) {
	a := persistence.NewInMemoryAdapter()
	ctx := context.Background()

	id, err := a.InsertWorkflow(ctx, repository.WorkflowRecord{Name: "w1", Status: "draft"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := a.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "w1", rec.Name)
	assert.Equal(t, 1, rec.Version)
}

func TestInMemoryAdapter_GetWorkflow_NotFound(t *testing.T) {
	a := persistence.NewInMemoryAdapter()
	_, err := a.GetWorkflow(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInMemoryAdapter_UpdateWorkflow_OptimisticLock(t *testing.T) {
	a := persistence.NewInMemoryAdapter()
	ctx := context.Background()
	id, err := a.InsertWorkflow(ctx, repository.WorkflowRecord{Name: "w1"})
	require.NoError(t, err)

	err = a.UpdateWorkflow(ctx, id, map[string]interface{}{
		"expected_version": 1,
		"name":             "w1-renamed",
	})
	require.NoError(t, err)

	rec, err := a.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "w1-renamed", rec.Name)
	assert.Equal(t, 2, rec.Version)

	err = a.UpdateWorkflow(ctx, id, map[string]interface{}{"expected_version": 1, "name": "stale"})
	assert.ErrorIs(t, err, repository.ErrOptimisticLock)
}

func TestInMemoryAdapter_DeleteWorkflow_CascadesExecutions(t *testing.T) {
	a := persistence.NewInMemoryAdapter()
	ctx := context.Background()
	wfID, err := a.InsertWorkflow(ctx, repository.WorkflowRecord{Name: "w1"})
	require.NoError(t, err)

	execID, err := a.InsertExecution(ctx, repository.ExecutionRecord{WorkflowUUID: wfID, Status: "succeeded"})
	require.NoError(t, err)

	require.NoError(t, a.DeleteWorkflow(ctx, wfID))

	_, err = a.GetExecution(ctx, execID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInMemoryAdapter_ListWorkflows_FiltersByBotID(t *testing.T) {
	a := persistence.NewInMemoryAdapter()
	ctx := context.Background()
	bot1, bot2 := "bot-1", "bot-2"
	_, err := a.InsertWorkflow(ctx, repository.WorkflowRecord{Name: "a", BotID: &bot1})
	require.NoError(t, err)
	_, err = a.InsertWorkflow(ctx, repository.WorkflowRecord{Name: "b", BotID: &bot2})
	require.NoError(t, err)

	recs, err := a.ListWorkflows(ctx, repository.ListOptions{BotID: &bot1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].Name)
}

func TestEncryptor_RoundTripsAuthFields(t *testing.T) {
	enc, err := persistence.NewEncryptor(persistence.EncryptorConfig{Passphrase: "test-passphrase"})
	require.NoError(t, err)

	auth := map[string]interface{}{
		"password": "s3cret",
		"username": "alice",
	}
	require.NoError(t, enc.EncryptAuth(auth))
	assert.NotEqual(t, "s3cret", auth["password"])
	assert.Equal(t, "alice", auth["username"])

	require.NoError(t, enc.DecryptAuth(auth))
	assert.Equal(t, "s3cret", auth["password"])
}

func TestEncryptor_WorkflowNodesRoundTrip_OnlyTouchesHTTPRequestAuth(t *testing.T) {
	enc, err := persistence.NewEncryptor(persistence.EncryptorConfig{Passphrase: "test-passphrase"})
	require.NoError(t, err)

	nodes := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{
				"id":   "call-api",
				"type": "http_request",
				"auth": map[string]interface{}{"token": "tok-123"},
			},
			map[string]interface{}{
				"id":   "reply",
				"type": "reply_message",
			},
		},
	}

	require.NoError(t, enc.EncryptWorkflowNodes(nodes))
	items := nodes["items"].([]interface{})
	httpNode := items[0].(map[string]interface{})
	auth := httpNode["auth"].(map[string]interface{})
	assert.NotEqual(t, "tok-123", auth["token"])

	require.NoError(t, enc.DecryptWorkflowNodes(nodes))
	assert.Equal(t, "tok-123", auth["token"])
}
