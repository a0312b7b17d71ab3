package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/app/service"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// Handlers holds the Manager and node registry the routes delegate to.
type Handlers struct {
	manager  *service.Manager
	registry *runtime.Registry
}

// NewHandlers wires a Handlers to its Manager and node registry (the latter
// backs the node-manifest metadata endpoint).
func NewHandlers(manager *service.Manager, registry *runtime.Registry) *Handlers {
	if registry == nil {
		registry = runtime.Default()
	}
	return &Handlers{manager: manager, registry: registry}
}

// workflowView is the wire shape for a Workflow (§6's export-adjacent
// fields, flattened for JSON rather than the YAML document shape §4.C
// defines — that one stays the serializer's alone).
type workflowView struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Version      int                    `json:"version"`
	Status       model.WorkflowStatus   `json:"status"`
	TriggerTypes []model.TriggerType    `json:"trigger_types"`
	BotID        *string                `json:"bot_id,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Nodes        []model.Node           `json:"nodes"`
	Edges        []model.Edge           `json:"edges"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    string                 `json:"created_at"`
	UpdatedAt    string                 `json:"updated_at"`
}

func toWorkflowView(w *model.Workflow) workflowView {
	return workflowView{
		ID:           w.ID().String(),
		Name:         w.Name(),
		Description:  w.Description(),
		Version:      w.Version(),
		Status:       w.Status(),
		TriggerTypes: w.TriggerTypes(),
		BotID:        w.BotID(),
		Tags:         w.Tags(),
		Category:     w.Category(),
		Nodes:        w.Nodes(),
		Edges:        w.Edges(),
		Metadata:     w.Metadata(),
		CreatedAt:    w.CreatedAt().Format(httpTimeFormat),
		UpdatedAt:    w.UpdatedAt().Format(httpTimeFormat),
	}
}

const httpTimeFormat = "2006-01-02T15:04:05.999999999Z07:00"

// createWorkflowRequest is the minimal body CreateWorkflow accepts; it
// creates a workflow with no nodes or edges. UpdateWorkflow does not accept
// a graph, so a workflow with nodes and edges is created through Import.
type createWorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateWorkflow handles POST /workflows.
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "name is required")
		return
	}

	wf, err := h.manager.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkflowView(wf))
}

// GetWorkflow handles GET /workflows/{id}.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])
	wf, ok := h.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowView(wf))
}

// ListWorkflows handles GET /workflows, optionally narrowed by ?bot_id= and
// ?status= (§4.F "list").
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.ListFilter{}
	if botID := q.Get("bot_id"); botID != "" {
		filter.BotID = &botID
	}
	if status := q.Get("status"); status != "" {
		s := model.WorkflowStatus(status)
		filter.Status = &s
	}

	workflows := h.manager.List(filter)
	views := make([]workflowView, len(workflows))
	for i, wf := range workflows {
		views[i] = toWorkflowView(wf)
	}
	writeJSON(w, http.StatusOK, views)
}

// updateWorkflowRequest mirrors the metadata subset of model.Fields for
// JSON transport; nil/absent fields are left unchanged, matching the
// Manager's field-wise merge. The node/edge graph itself is never accepted
// as raw JSON here: NodeConfig is a tagged-variant interface that only the
// serializer's typed document parsing (§4.C) can reconstruct, so graph
// edits go through import instead.
type updateWorkflowRequest struct {
	Name         *string                               `json:"name"`
	Description  *string                               `json:"description"`
	TriggerTypes []model.TriggerType                    `json:"trigger_types"`
	Variables    map[string]model.VariableDeclaration   `json:"variables"`
	Tags         []string                               `json:"tags"`
	Category     *string                                `json:"category"`
	Metadata     map[string]interface{}                 `json:"metadata"`
}

// UpdateWorkflow handles PUT /workflows/{id}.
func (h *Handlers) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])

	var req updateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	wf, err := h.manager.Update(r.Context(), id, model.Fields{
		Name: req.Name, Description: req.Description, TriggerTypes: req.TriggerTypes,
		Variables: req.Variables, Tags: req.Tags, Category: req.Category, Metadata: req.Metadata,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowView(wf))
}

// DeleteWorkflow handles DELETE /workflows/{id}.
func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])
	if err := h.manager.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateWorkflow handles POST /workflows/{id}/activate.
func (h *Handlers) ActivateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])
	if err := h.manager.Activate(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	wf, _ := h.manager.Get(id)
	writeJSON(w, http.StatusOK, toWorkflowView(wf))
}

// DeactivateWorkflow handles POST /workflows/{id}/deactivate.
func (h *Handlers) DeactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])
	if err := h.manager.Deactivate(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	wf, _ := h.manager.Get(id)
	writeJSON(w, http.StatusOK, toWorkflowView(wf))
}

// bindBotRequest carries the (possibly null, to unbind) bot id.
type bindBotRequest struct {
	BotID *string `json:"bot_id"`
}

// BindBot handles POST /workflows/{id}/bind.
func (h *Handlers) BindBot(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])

	var req bindBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if err := h.manager.BindBot(r.Context(), id, req.BotID); err != nil {
		writeDomainError(w, err)
		return
	}
	wf, _ := h.manager.Get(id)
	writeJSON(w, http.StatusOK, toWorkflowView(wf))
}

// ImportWorkflow handles POST /workflows/import. The body is the raw YAML
// document (§4.C); Content-Type is expected to be application/x-yaml or
// text/yaml but is not enforced.
func (h *Handlers) ImportWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "could not read request body")
		return
	}

	wf, warnings, err := h.manager.Import(r.Context(), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Workflow workflowView `json:"workflow"`
		Warnings []string     `json:"warnings,omitempty"`
	}{Workflow: toWorkflowView(wf), Warnings: warnings})
}

// ExportWorkflow handles GET /workflows/{id}/export, returning the raw YAML
// document body.
func (h *Handlers) ExportWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])
	doc, err := h.manager.Export(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// executeRequest is the execute/debug request body: an explicit trigger
// kind plus arbitrary trigger data forwarded into Context.TriggerData.
type executeRequest struct {
	Trigger model.TriggerType      `json:"trigger"`
	Data    map[string]interface{} `json:"data"`
}

// ExecuteWorkflow handles POST /workflows/{id}/execute.
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])

	var req executeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}
	if req.Trigger == "" {
		req.Trigger = model.TriggerAPI
	}

	result, err := h.manager.ExecuteWorkflow(r.Context(), id, req.Trigger, req.Data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// messageEventRequest is the event-ingress body (§6 "handle_message_event").
type messageEventRequest struct {
	BotID     string                 `json:"bot_id"`
	EventType string                 `json:"event_type"`
	EventData map[string]interface{} `json:"event_data"`
}

// HandleMessageEvent handles POST /events/message.
func (h *Handlers) HandleMessageEvent(w http.ResponseWriter, r *http.Request) {
	var req messageEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	results, err := h.manager.HandleMessageEvent(r.Context(), req.BotID, req.EventType, req.EventData)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// debugStartRequest carries the initial breakpoint set/step mode (§4.E).
type debugStartRequest struct {
	Trigger     model.TriggerType      `json:"trigger"`
	Data        map[string]interface{} `json:"data"`
	Breakpoints []string               `json:"breakpoints"`
	StepMode    bool                   `json:"step_mode"`
}

// debugSessionView is the wire shape returned when a debug session starts.
type debugSessionView struct {
	SessionID  string `json:"session_id"`
	WorkflowID string `json:"workflow_id"`
}

// DebugWorkflow handles POST /workflows/{id}/debug, starting a debug
// session the caller then drives via the WebSocket endpoint or the
// step/continue/snapshot REST endpoints below.
func (h *Handlers) DebugWorkflow(w http.ResponseWriter, r *http.Request) {
	id := model.WorkflowID(mux.Vars(r)["id"])

	var req debugStartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}
	if req.Trigger == "" {
		req.Trigger = model.TriggerAPI
	}

	session, err := h.manager.DebugWorkflow(r.Context(), id, req.Trigger, req.Data, req.Breakpoints, req.StepMode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, debugSessionView{SessionID: session.ID, WorkflowID: session.WorkflowID.String()})
}

// DebugStep handles POST /debug/{session_id}/step.
func (h *Handlers) DebugStep(w http.ResponseWriter, r *http.Request) {
	session, ok := h.manager.DebugSessionByID(mux.Vars(r)["session_id"])
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "debug session not found")
		return
	}
	session.Debugger.Step()
	writeJSON(w, http.StatusOK, session.Debugger.Snapshot())
}

// DebugContinue handles POST /debug/{session_id}/continue.
func (h *Handlers) DebugContinue(w http.ResponseWriter, r *http.Request) {
	session, ok := h.manager.DebugSessionByID(mux.Vars(r)["session_id"])
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "debug session not found")
		return
	}
	session.Debugger.Continue()
	writeJSON(w, http.StatusOK, session.Debugger.Snapshot())
}

// DebugSnapshot handles GET /debug/{session_id}.
func (h *Handlers) DebugSnapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := h.manager.DebugSessionByID(mux.Vars(r)["session_id"])
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "debug session not found")
		return
	}

	select {
	case <-session.Done:
		resp := struct {
			Done   bool         `json:"done"`
			Result model.Result `json:"result"`
			Error  string       `json:"error,omitempty"`
		}{Done: true, Result: session.Result}
		if session.Err != nil {
			resp.Error = session.Err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		snap := session.Debugger.Snapshot()
		writeJSON(w, http.StatusOK, struct {
			Done     bool            `json:"done"`
			Snapshot engineSnapshot  `json:"snapshot"`
		}{Done: false, Snapshot: toSnapshotView(snap)})
	}
}

// NodeManifest handles GET /nodes/manifest, listing every registered node
// type (§6 "metadata (node manifests)").
func (h *Handlers) NodeManifest(w http.ResponseWriter, r *http.Request) {
	types := h.registry.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	writeJSON(w, http.StatusOK, names)
}
