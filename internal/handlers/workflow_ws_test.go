package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/incidra/incidra/internal/api"
	"github.com/incidra/incidra/internal/database"
)

func TestHandleLogStream(t *testing.T) {
	env := setupTestEnv(t)
	wf := createTestWorkflow(t, env,
		api.WorkflowTaskRequest{Name: "first", Action: "noop"},
		api.WorkflowTaskRequest{Name: "second", Action: "noop"},
	)
	if err := env.engine.Execute(context.Background(), wf.UUID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := httptest.NewServer(env.mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/workflows/" + wf.UUID + "/log/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// The full execution log streams in order, then the server closes with
	// the terminal status.
	var messages []database.WorkflowLogEntry
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var entry database.WorkflowLogEntry
		if err := conn.ReadJSON(&entry); err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Text != string(database.WorkflowStatusCompleted) {
					t.Errorf("expected completed close reason, got %q", closeErr.Text)
				}
				break
			}
			t.Fatalf("unexpected read error: %v", err)
		}
		messages = append(messages, entry)
	}

	if len(messages) < 4 {
		t.Fatalf("expected at least 4 log entries, got %d", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].ID <= messages[i-1].ID {
			t.Error("expected entries streamed in log order")
		}
	}
}

func TestHandleLogStream_UnknownWorkflow(t *testing.T) {
	env := setupTestEnv(t)

	server := httptest.NewServer(env.mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/workflows/no-such/log/ws")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
