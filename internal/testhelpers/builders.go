// Package testhelpers provides additional data builders for testing
package testhelpers

import (
	"time"

	"github.com/google/uuid"

	"github.com/incidra/incidra/internal/database"
)

// ========================================
// Incident Builder
// ========================================

// IncidentBuilder builds Incident instances for testing
type IncidentBuilder struct {
	incident database.Incident
}

// NewIncidentBuilder creates a new incident builder with defaults
func NewIncidentBuilder() *IncidentBuilder {
	return &IncidentBuilder{
		incident: database.Incident{
			UUID:              uuid.New().String(),
			Title:             "test incident",
			Category:          "intrusion",
			Status:            database.IncidentStatusNew,
			Severity:          database.SeverityMedium,
			SLAResponseTime:   2 * time.Hour,
			SLAResolutionTime: 24 * time.Hour,
			CreatedAt:         time.Now(),
			UpdatedAt:         time.Now(),
		},
	}
}

// WithTitle sets the incident title
func (b *IncidentBuilder) WithTitle(title string) *IncidentBuilder {
	b.incident.Title = title
	return b
}

// WithStatus sets the incident status
func (b *IncidentBuilder) WithStatus(status database.IncidentStatus) *IncidentBuilder {
	b.incident.Status = status
	return b
}

// WithSeverity sets the incident severity
func (b *IncidentBuilder) WithSeverity(severity database.Severity) *IncidentBuilder {
	b.incident.Severity = severity
	return b
}

// WithCategory sets the incident category
func (b *IncidentBuilder) WithCategory(category string) *IncidentBuilder {
	b.incident.Category = category
	return b
}

// WithAssets sets the affected assets
func (b *IncidentBuilder) WithAssets(assets ...string) *IncidentBuilder {
	b.incident.AffectedAssets = assets
	return b
}

// WithThreats sets the related threats
func (b *IncidentBuilder) WithThreats(threats ...string) *IncidentBuilder {
	b.incident.RelatedThreats = threats
	return b
}

// WithAge backdates the incident's creation time
func (b *IncidentBuilder) WithAge(age time.Duration) *IncidentBuilder {
	b.incident.CreatedAt = time.Now().Add(-age)
	return b
}

// WithSLA sets the SLA durations
func (b *IncidentBuilder) WithSLA(response, resolution time.Duration) *IncidentBuilder {
	b.incident.SLAResponseTime = response
	b.incident.SLAResolutionTime = resolution
	return b
}

// Build returns the constructed incident
func (b *IncidentBuilder) Build() database.Incident {
	return b.incident
}

// ========================================
// Workflow Builder
// ========================================

// WorkflowBuilder builds Workflow instances for testing
type WorkflowBuilder struct {
	workflow database.Workflow
}

// NewWorkflowBuilder creates a new workflow builder with defaults
func NewWorkflowBuilder() *WorkflowBuilder {
	return &WorkflowBuilder{
		workflow: database.Workflow{
			UUID:   uuid.New().String(),
			Name:   "test-workflow",
			Status: database.WorkflowStatusPending,
		},
	}
}

// WithName sets the workflow name
func (b *WorkflowBuilder) WithName(name string) *WorkflowBuilder {
	b.workflow.Name = name
	return b
}

// WithStatus sets the workflow status
func (b *WorkflowBuilder) WithStatus(status database.WorkflowStatus) *WorkflowBuilder {
	b.workflow.Status = status
	return b
}

// ForIncident attaches the workflow to an incident
func (b *WorkflowBuilder) ForIncident(incidentID uint) *WorkflowBuilder {
	b.workflow.IncidentID = &incidentID
	return b
}

// WithTask appends a task to the workflow
func (b *WorkflowBuilder) WithTask(name, action string) *WorkflowBuilder {
	b.workflow.Tasks = append(b.workflow.Tasks, database.WorkflowTask{
		Position: len(b.workflow.Tasks),
		Name:     name,
		Action:   action,
		Status:   database.TaskStatusPending,
	})
	return b
}

// Build returns the constructed workflow
func (b *WorkflowBuilder) Build() database.Workflow {
	return b.workflow
}
