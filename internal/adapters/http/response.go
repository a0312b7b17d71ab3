// Package http is the thin REST/WebSocket controller surface (§6): CRUD,
// execute, debug (start/step/continue), import, export, bot-scoped listing,
// and node-manifest metadata, each a direct mapping onto a Manager
// operation. It owns no business logic of its own.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// envelope is the standard response shape every endpoint returns.
type envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

// apiError is §6's required error shape: {status_code, code, message}.
type apiError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &apiError{StatusCode: status, Code: code, Message: message}})
}

// writeDomainError maps a §7 error kind (via errors.Is against model's
// sentinel errors) onto an HTTP status and code, falling back to 500 for
// anything unrecognized.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, model.ErrInvalidState):
		writeError(w, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, model.ErrNoStart), errors.Is(err, model.ErrUnsatisfiableDependencies):
		writeError(w, http.StatusUnprocessableEntity, "GRAPH_ERROR", err.Error())
	case errors.Is(err, model.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, "PERSISTENCE_ERROR", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
