package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapterhttp "github.com/chatflow/workflow-core/internal/adapters/http"
	"github.com/chatflow/workflow-core/internal/adapters/messaging"
	"github.com/chatflow/workflow-core/internal/adapters/persistence"
	"github.com/chatflow/workflow-core/internal/node/runtime"
	_ "github.com/chatflow/workflow-core/internal/node/runtime/nodes"
	"github.com/chatflow/workflow-core/internal/workflow/app/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	sink := messaging.NewInMemorySink()
	m := service.NewManager(persistence.NewInMemoryAdapter(), runtime.Default(), nil, sink, nil)
	router := adapterhttp.NewRouter(m, runtime.Default())
	return httptest.NewServer(router)
}

func decodeEnvelope(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			StatusCode int    `json:"status_code"`
			Code       string `json:"code"`
			Message    string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Nil(t, env.Error, "unexpected error envelope: %+v", env.Error)
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
}

func TestWorkflowHandlers_CreateGetListUpdate(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	createBody, _ := json.Marshal(map[string]string{"name": "demo", "description": "a demo workflow"})
	resp, err := http.Post(srv.URL+"/api/v1/workflows", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	decodeEnvelope(t, resp, &created)
	assert.Equal(t, "demo", created.Name)
	assert.Equal(t, "draft", created.Status)
	require.NotEmpty(t, created.ID)

	getResp, err := http.Get(srv.URL + "/api/v1/workflows/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	listResp, err := http.Get(srv.URL + "/api/v1/workflows")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var list []struct{ ID string }
	decodeEnvelope(t, listResp, &list)
	assert.Len(t, list, 1)

	updateBody, _ := json.Marshal(map[string]interface{}{"name": "renamed"})
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/workflows/"+created.ID, bytes.NewReader(updateBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	updResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, updResp.StatusCode)
	var updated struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}
	decodeEnvelope(t, updResp, &updated)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 2, updated.Version)
}

func TestWorkflowHandlers_GetMissing_Returns404WithErrorShape(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/workflows/does-not-exist")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var env struct {
		Error struct {
			StatusCode int    `json:"status_code"`
			Code       string `json:"code"`
			Message    string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, http.StatusNotFound, env.Error.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestWorkflowHandlers_ImportExportRoundTrips(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	doc := []byte(`
workflow:
  name: http-roundtrip
  version: 1
  status: draft
  trigger_types: [manual]
  nodes:
    - id: start
      type: event_start
      trigger_type: manual
    - id: reply
      type: reply_message
      content: "hi there"
  edges:
    - id: e1
      source: start
      target: reply
`)
	importResp, err := http.Post(srv.URL+"/api/v1/workflows/import", "application/x-yaml", bytes.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, importResp.StatusCode)

	var imported struct {
		Workflow struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"workflow"`
		Warnings []string `json:"warnings"`
	}
	decodeEnvelope(t, importResp, &imported)
	assert.Equal(t, "http-roundtrip", imported.Workflow.Name)
	assert.Empty(t, imported.Warnings)

	exportResp, err := http.Get(srv.URL + "/api/v1/workflows/" + imported.Workflow.ID + "/export")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, exportResp.StatusCode)
	assert.Equal(t, "application/x-yaml", exportResp.Header.Get("Content-Type"))
}

func TestWorkflowHandlers_ExecuteTrivialReply(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	doc := []byte(`
workflow:
  name: greeter
  version: 1
  status: active
  trigger_types: [manual]
  nodes:
    - id: start
      type: event_start
      trigger_type: manual
    - id: reply
      type: reply_message
      content: "hello"
  edges:
    - id: e1
      source: start
      target: reply
`)
	importResp, err := http.Post(srv.URL+"/api/v1/workflows/import", "application/x-yaml", bytes.NewReader(doc))
	require.NoError(t, err)
	var imported struct {
		Workflow struct {
			ID string `json:"id"`
		} `json:"workflow"`
	}
	decodeEnvelope(t, importResp, &imported)

	execBody, _ := json.Marshal(map[string]interface{}{"trigger": "manual", "data": map[string]interface{}{}})
	execResp, err := http.Post(srv.URL+"/api/v1/workflows/"+imported.Workflow.ID+"/execute", "application/json", bytes.NewReader(execBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, execResp.StatusCode)

	var result struct {
		Status string `json:"Status"`
	}
	decodeEnvelope(t, execResp, &result)
	assert.Equal(t, "succeeded", result.Status)
}

func TestNodeManifestHandler_ListsRegisteredTypes(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/nodes/manifest")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var types []string
	decodeEnvelope(t, resp, &types)
	assert.Contains(t, types, "reply_message")
	assert.Contains(t, types, "event_start")
}

func TestDebugWorkflow_StartAndSnapshot(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	doc := []byte(`
workflow:
  name: debuggable
  version: 1
  status: active
  trigger_types: [manual]
  nodes:
    - id: start
      type: event_start
      trigger_type: manual
    - id: reply
      type: reply_message
      content: "hi"
  edges:
    - id: e1
      source: start
      target: reply
`)
	importResp, err := http.Post(srv.URL+"/api/v1/workflows/import", "application/x-yaml", bytes.NewReader(doc))
	require.NoError(t, err)
	var imported struct {
		Workflow struct {
			ID string `json:"id"`
		} `json:"workflow"`
	}
	decodeEnvelope(t, importResp, &imported)

	debugBody, _ := json.Marshal(map[string]interface{}{"trigger": "manual"})
	debugResp, err := http.Post(srv.URL+"/api/v1/workflows/"+imported.Workflow.ID+"/debug", "application/json", bytes.NewReader(debugBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, debugResp.StatusCode)

	var session struct {
		SessionID string `json:"session_id"`
	}
	decodeEnvelope(t, debugResp, &session)
	require.NotEmpty(t, session.SessionID)

	snapResp, err := http.Get(srv.URL + "/api/v1/debug/" + session.SessionID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, snapResp.StatusCode)
}
