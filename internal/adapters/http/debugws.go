package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/chatflow/workflow-core/internal/engine"
)

// upgrader allows any origin; this mirrors the teacher's own development
// posture for its debug/notification socket and is narrowed at the reverse
// proxy in deployment, not here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// engineSnapshot is the JSON wire shape of an engine.Snapshot.
type engineSnapshot struct {
	ExecutionID   string                            `json:"execution_id"`
	CurrentNode   string                             `json:"current_node"`
	ExecutedNodes []string                           `json:"executed_nodes"`
	Variables     map[string]interface{}            `json:"variables"`
	NodeOutputs   map[string]map[string]interface{} `json:"node_outputs"`
	Errors        []engineContextError               `json:"errors"`
}

type engineContextError struct {
	NodeID    string    `json:"node_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func toSnapshotView(s engine.Snapshot) engineSnapshot {
	errs := make([]engineContextError, len(s.Errors))
	for i, e := range s.Errors {
		errs[i] = engineContextError{NodeID: e.NodeID, Message: e.Message, Timestamp: e.Timestamp}
	}
	return engineSnapshot{
		ExecutionID:   s.ExecutionID,
		CurrentNode:   s.CurrentNode,
		ExecutedNodes: s.ExecutedNodes,
		Variables:     s.Variables,
		NodeOutputs:   s.NodeOutputs,
		Errors:        errs,
	}
}

// wsCommand is one inbound command on a debug WebSocket connection.
type wsCommand struct {
	Action string `json:"action"` // "step" | "continue" | "snapshot"
}

// wsEvent is one outbound frame: either a snapshot push or a terminal
// result once the debugged execution finishes.
type wsEvent struct {
	Type     string          `json:"type"` // "snapshot" | "done" | "error"
	Snapshot *engineSnapshot `json:"snapshot,omitempty"`
	Result   interface{}     `json:"result,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// DebugSocket handles GET /debug/{session_id}/ws, upgrading to a WebSocket
// that accepts {"action":"step"|"continue"|"snapshot"} commands and pushes
// a snapshot frame after each, closing with a "done" frame once the
// debugged execution terminates (§4.E, read over the wire rather than
// purely by polling the REST snapshot endpoint above).
func (h *Handlers) DebugSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	session, ok := h.manager.DebugSessionByID(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "debug session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	send := func(ev wsEvent) bool {
		return conn.WriteJSON(ev) == nil
	}

	if !send(wsEvent{Type: "snapshot", Snapshot: snapshotPtr(session.Debugger.Snapshot())}) {
		return
	}

	done := session.Done
	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}

		switch cmd.Action {
		case "step":
			session.Debugger.Step()
		case "continue":
			session.Debugger.Continue()
		case "snapshot":
			// fall through to the push below without advancing
		default:
			if !send(wsEvent{Type: "error", Message: "unknown action " + cmd.Action}) {
				return
			}
			continue
		}

		select {
		case <-done:
			ev := wsEvent{Type: "done", Result: session.Result}
			if session.Err != nil {
				ev.Message = session.Err.Error()
			}
			send(ev)
			return
		default:
		}

		if !send(wsEvent{Type: "snapshot", Snapshot: snapshotPtr(session.Debugger.Snapshot())}) {
			return
		}
	}
}

func snapshotPtr(s engine.Snapshot) *engineSnapshot {
	v := toSnapshotView(s)
	return &v
}
