package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/executor"
	"github.com/incidra/incidra/internal/notify"
	"github.com/incidra/incidra/internal/services"
	"github.com/incidra/incidra/internal/workflow"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// testEnv wires a full handler stack over an in-memory database.
type testEnv struct {
	db       *gorm.DB
	mux      *http.ServeMux
	handler  *APIHandler
	engine   *workflow.Engine
	registry *executor.Registry
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	registry := executor.NewRegistry()
	registry.Register("noop", func(ctx context.Context, params map[string]interface{}) (string, error) {
		return "ok", nil
	})
	registry.Register("always_fails", func(ctx context.Context, params map[string]interface{}) (string, error) {
		return "", fmt.Errorf("boom")
	})

	engine := workflow.NewEngine(db, registry)
	engine.SetRetryDelay(0)

	handler := NewAPIHandler(
		services.NewIncidentService(db),
		services.NewPlaybookService(),
		services.NewPostMortemService(db),
		engine,
		notify.New(db, "", ""),
	)

	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	return &testEnv{db: db, mux: mux, handler: handler, engine: engine, registry: registry}
}
