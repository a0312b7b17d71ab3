package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/app/service"
)

// NewRouter builds the full REST/WebSocket surface over manager, matching
// the teacher's per-domain RegisterRoutes convention but collapsed into one
// router builder since this module has a single bounded context.
func NewRouter(manager *service.Manager, registry *runtime.Registry) *mux.Router {
	h := NewHandlers(manager, registry)
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/workflows", h.CreateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows", h.ListWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows/import", h.ImportWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}", h.GetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", h.UpdateWorkflow).Methods(http.MethodPut)
	api.HandleFunc("/workflows/{id}", h.DeleteWorkflow).Methods(http.MethodDelete)
	api.HandleFunc("/workflows/{id}/activate", h.ActivateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/deactivate", h.DeactivateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/bind", h.BindBot).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/export", h.ExportWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/execute", h.ExecuteWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/debug", h.DebugWorkflow).Methods(http.MethodPost)

	api.HandleFunc("/debug/{session_id}", h.DebugSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/debug/{session_id}/step", h.DebugStep).Methods(http.MethodPost)
	api.HandleFunc("/debug/{session_id}/continue", h.DebugContinue).Methods(http.MethodPost)
	api.HandleFunc("/debug/{session_id}/ws", h.DebugSocket)

	api.HandleFunc("/events/message", h.HandleMessageEvent).Methods(http.MethodPost)
	api.HandleFunc("/nodes/manifest", h.NodeManifest).Methods(http.MethodGet)

	return r
}
