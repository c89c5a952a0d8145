package handlers

import (
	"net/http"

	"github.com/incidra/incidra/internal/middleware"
	"github.com/incidra/incidra/internal/notify"
	"github.com/incidra/incidra/internal/services"
	"github.com/incidra/incidra/internal/workflow"
)

// APIHandler handles the incident and workflow API endpoints
type APIHandler struct {
	incidentService   *services.IncidentService
	playbookService   *services.PlaybookService
	postMortemService *services.PostMortemService
	engine            *workflow.Engine
	notifier          *notify.Notifier
	wsHandler         *WorkflowWSHandler
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	incidentService *services.IncidentService,
	playbookService *services.PlaybookService,
	postMortemService *services.PostMortemService,
	engine *workflow.Engine,
	notifier *notify.Notifier,
) *APIHandler {
	return &APIHandler{
		incidentService:   incidentService,
		playbookService:   playbookService,
		postMortemService: postMortemService,
		engine:            engine,
		notifier:          notifier,
		wsHandler:         NewWorkflowWSHandler(engine),
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Incident endpoints
	mux.HandleFunc("GET /api/incidents", h.handleListIncidents)
	mux.HandleFunc("POST /api/incidents", h.handleCreateIncident)
	mux.HandleFunc("GET /api/incidents/{uuid}", h.handleGetIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/assign", h.handleAssignIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/transition", h.handleTransitionIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/reprioritize", h.handleReprioritizeIncident)
	mux.HandleFunc("GET /api/incidents/{uuid}/sla", h.handleIncidentSLA)
	mux.HandleFunc("POST /api/incidents/{uuid}/links", h.handleLinkIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/threats", h.handleLinkThreat)
	mux.HandleFunc("GET /api/incidents/{uuid}/timeline", h.handleGetTimeline)
	mux.HandleFunc("POST /api/incidents/{uuid}/timeline", h.handleAddTimelineEvent)
	mux.HandleFunc("GET /api/incidents/{uuid}/evidence", h.handleListEvidence)
	mux.HandleFunc("POST /api/incidents/{uuid}/evidence", h.handleAddEvidence)
	mux.HandleFunc("GET /api/incidents/{uuid}/notifications", h.handleListNotifications)
	mux.HandleFunc("GET /api/incidents/{uuid}/workflows", h.handleListIncidentWorkflows)
	mux.HandleFunc("GET /api/incidents/{uuid}/postmortem", h.handleGetPostMortem)
	mux.HandleFunc("POST /api/incidents/{uuid}/postmortem", h.handleBuildPostMortem)

	// Workflow endpoints
	mux.HandleFunc("GET /api/workflows", h.handleListWorkflows)
	mux.HandleFunc("POST /api/workflows", h.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflows/{uuid}", h.handleGetWorkflow)
	mux.HandleFunc("POST /api/workflows/{uuid}/execute", h.handleExecuteWorkflow)
	mux.HandleFunc("POST /api/workflows/{uuid}/approve", h.handleApproveTask)
	mux.HandleFunc("POST /api/workflows/{uuid}/cancel", h.handleCancelWorkflow)
	mux.HandleFunc("GET /api/workflows/{uuid}/log", h.handleWorkflowLog)
	mux.HandleFunc("GET /api/workflows/{uuid}/log/ws", h.wsHandler.HandleLogStream)

	// Playbook endpoints
	mux.HandleFunc("GET /api/playbooks", h.handleListPlaybooks)
	mux.HandleFunc("GET /api/playbooks/{name}", h.handleGetPlaybook)
	mux.HandleFunc("POST /api/playbooks/{name}/instantiate", h.handleInstantiatePlaybook)
}

// actor resolves the acting user from the request context. Requests that
// bypass authentication act as "system".
func actor(r *http.Request) string {
	if user := middleware.GetUserFromContext(r.Context()); user != "" {
		return user
	}
	return "system"
}
