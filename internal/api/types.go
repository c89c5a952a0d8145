package api

import (
	"time"

	"github.com/incidra/incidra/internal/database"
)

// ========== Incident Types ==========

// CreateIncidentRequest is the request body for POST /api/incidents.
type CreateIncidentRequest struct {
	Title          string   `json:"title" validate:"required,min=1,max=255"`
	Description    string   `json:"description" validate:"omitempty,max=8192"`
	Category       string   `json:"category" validate:"omitempty,max=64"`
	Severity       string   `json:"severity" validate:"omitempty,oneof=critical high medium low"`
	AssignedTo     string   `json:"assigned_to" validate:"omitempty,max=128"`
	AffectedAssets []string `json:"affected_assets"`
	RelatedThreats []string `json:"related_threats"`

	// Optional SLA overrides, in seconds.
	SLAResponseSeconds   int `json:"sla_response_seconds" validate:"omitempty,gte=0"`
	SLAResolutionSeconds int `json:"sla_resolution_seconds" validate:"omitempty,gte=0"`
}

// AssignIncidentRequest is the request body for POST /api/incidents/{uuid}/assign.
type AssignIncidentRequest struct {
	Assignee string `json:"assignee" validate:"required,max=128"`
}

// TransitionIncidentRequest is the request body for POST /api/incidents/{uuid}/transition.
type TransitionIncidentRequest struct {
	Status string `json:"status" validate:"required,oneof=new in_progress resolved closed reopened"`
	Reason string `json:"reason" validate:"omitempty,max=1024"`
}

// LinkIncidentRequest is the request body for POST /api/incidents/{uuid}/links.
type LinkIncidentRequest struct {
	TargetUUID string `json:"target_uuid" validate:"required,len=36"`
}

// LinkThreatRequest is the request body for POST /api/incidents/{uuid}/threats.
type LinkThreatRequest struct {
	Threat string `json:"threat" validate:"required,max=255"`
}

// AddTimelineEventRequest is the request body for POST /api/incidents/{uuid}/timeline.
type AddTimelineEventRequest struct {
	Event   string `json:"event" validate:"required,max=64"`
	Message string `json:"message" validate:"omitempty,max=4096"`
}

// AddEvidenceRequest is the request body for POST /api/incidents/{uuid}/evidence.
type AddEvidenceRequest struct {
	Reference string `json:"reference" validate:"required,max=255"`
	Kind      string `json:"kind" validate:"omitempty,max=64"`
	Filename  string `json:"filename" validate:"omitempty,max=255"`
}

// IncidentListItem is the compact incident representation used in lists.
type IncidentListItem struct {
	ID            uint                    `json:"id"`
	UUID          string                  `json:"uuid"`
	Title         string                  `json:"title"`
	Category      string                  `json:"category"`
	Status        database.IncidentStatus `json:"status"`
	Severity      database.Severity       `json:"severity"`
	AssignedTo    string                  `json:"assigned_to"`
	PriorityScore float64                 `json:"priority_score"`
	SLABreached   bool                    `json:"sla_breached"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// IncidentListResponse is the paginated response for GET /api/incidents.
type IncidentListResponse struct {
	Incidents  []IncidentListItem `json:"incidents"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	TotalPages int                `json:"total_pages"`
}

// ========== Workflow Types ==========

// WorkflowTaskRequest describes one task in a workflow creation request.
type WorkflowTaskRequest struct {
	Name             string         `json:"name" validate:"required,max=255"`
	Action           string         `json:"action" validate:"required,max=64"`
	Parameters       database.JSONB `json:"parameters"`
	RequiresApproval bool           `json:"requires_approval"`
	TimeoutSeconds   int            `json:"timeout_seconds" validate:"omitempty,gte=0"`
	MaxRetries       int            `json:"max_retries" validate:"omitempty,gte=0"`
}

// CreateWorkflowRequest is the request body for POST /api/workflows.
type CreateWorkflowRequest struct {
	Name         string                `json:"name" validate:"required,max=255"`
	Description  string                `json:"description" validate:"omitempty,max=4096"`
	IncidentUUID string                `json:"incident_uuid" validate:"omitempty,len=36"`
	Tasks        []WorkflowTaskRequest `json:"tasks" validate:"required,min=1,dive"`
}

// InstantiatePlaybookRequest is the request body for POST /api/playbooks/{name}/instantiate.
type InstantiatePlaybookRequest struct {
	IncidentUUID string            `json:"incident_uuid" validate:"omitempty,len=36"`
	Variables    map[string]string `json:"variables"`
}

// ApproveTaskRequest is the request body for POST /api/workflows/{uuid}/approve.
type ApproveTaskRequest struct {
	Approver string `json:"approver" validate:"required,max=128"`
}

// ========== Post-Mortem Types ==========

// BuildPostMortemRequest is the request body for POST /api/incidents/{uuid}/postmortem.
type BuildPostMortemRequest struct {
	Summary string `json:"summary" validate:"omitempty,max=8192"`
}

// ========== Auth Types ==========

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the response body for POST /api/auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
