package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/incidra/incidra/internal/workflow"
)

// logPollInterval is how often the stream checks for new log entries.
const logPollInterval = time.Second

// WorkflowWSHandler streams workflow execution logs over WebSocket.
type WorkflowWSHandler struct {
	engine   *workflow.Engine
	upgrader websocket.Upgrader
}

// NewWorkflowWSHandler creates a new workflow log stream handler
func NewWorkflowWSHandler(engine *workflow.Engine) *WorkflowWSHandler {
	return &WorkflowWSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API is protected by the auth middleware; origin checks
			// are left to the deployment's reverse proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleLogStream handles GET /api/workflows/{uuid}/log/ws. Existing log
// entries are sent first, then new entries as they appear. The stream closes
// once the workflow reaches a terminal state and the log is drained.
func (h *WorkflowWSHandler) HandleLogStream(w http.ResponseWriter, r *http.Request) {
	workflowUUID := r.PathValue("uuid")

	if _, err := h.engine.Get(workflowUUID); err != nil {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WorkflowWS: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: surfaces client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var sinceID uint
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	for {
		entries, err := h.engine.ExecutionLog(workflowUUID, sinceID)
		if err != nil {
			log.Printf("WorkflowWS: failed to read log for %s: %v", workflowUUID, err)
			return
		}
		for _, entry := range entries {
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
			sinceID = entry.ID
		}

		// Drained and terminal: close the stream cleanly.
		if len(entries) == 0 {
			wf, err := h.engine.Get(workflowUUID)
			if err != nil {
				return
			}
			if wf.Status.IsTerminal() {
				deadline := time.Now().Add(time.Second)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(wf.Status)),
					deadline)
				return
			}
		}

		select {
		case <-ticker.C:
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
