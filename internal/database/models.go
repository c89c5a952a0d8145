package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			return json.Unmarshal([]byte(s), j)
		}
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList stores an ordered list of strings as a JSONB array
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			return json.Unmarshal([]byte(s), l)
		}
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(l))
}

// Contains reports whether the list holds the given value
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// ========== Incident Models ==========

// IncidentStatus represents the lifecycle status of an incident
type IncidentStatus string

const (
	IncidentStatusNew        IncidentStatus = "new"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusClosed     IncidentStatus = "closed"
	IncidentStatusReopened   IncidentStatus = "reopened"
)

// Severity represents incident severity levels
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidSeverities returns all recognized severity values
func ValidSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// legalTransitions is the incident state machine. Any (from, to) pair not
// listed here is rejected. Reprioritization is not a transition and never
// changes status.
var legalTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentStatusNew:        {IncidentStatusInProgress},
	IncidentStatusInProgress: {IncidentStatusResolved},
	IncidentStatusResolved:   {IncidentStatusClosed, IncidentStatusReopened},
	IncidentStatusClosed:     {IncidentStatusReopened},
	IncidentStatusReopened:   {IncidentStatusInProgress},
}

// CanTransition reports whether the incident state machine allows from -> to
func CanTransition(from, to IncidentStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Incident represents a security incident ticket
type Incident struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"size:64;index" json:"category"` // e.g. "malware", "phishing", "intrusion"
	Status      IncidentStatus `gorm:"type:varchar(32);not null;default:'new';index" json:"status"`
	Severity    Severity       `gorm:"type:varchar(16);not null;default:'medium';index" json:"severity"`
	AssignedTo  string         `gorm:"size:128" json:"assigned_to"`

	AffectedAssets   StringList `gorm:"type:jsonb" json:"affected_assets"`
	RelatedIncidents StringList `gorm:"type:jsonb" json:"related_incidents"` // directed edge, stored on the acting incident only
	RelatedThreats   StringList `gorm:"type:jsonb" json:"related_threats"`

	// Derived scores, recomputed on demand by the scoring engine
	ImpactScore   float64 `json:"impact_score"`
	UrgencyScore  float64 `json:"urgency_score"`
	PriorityScore float64 `json:"priority_score"`

	// SLA durations are fixed at creation
	SLAResponseTime   time.Duration `json:"sla_response_time"`
	SLAResolutionTime time.Duration `json:"sla_resolution_time"`

	SLABreachNotifiedAt *time.Time `json:"sla_breach_notified_at,omitempty"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// BeforeCreate defaults the severity to medium when unset or unrecognized
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	valid := false
	for _, s := range ValidSeverities() {
		if i.Severity == s {
			valid = true
			break
		}
	}
	if !valid {
		i.Severity = SeverityMedium
	}
	if i.Status == "" {
		i.Status = IncidentStatusNew
	}
	return nil
}

// IsTerminal reports whether the incident is closed. REOPENED remains
// reachable from closed, so "terminal" here only gates automatic activity.
func (i *Incident) IsTerminal() bool {
	return i.Status == IncidentStatusClosed
}

// IsSLABreached derives the SLA state from wall-clock time. It is never
// stored: NEW incidents breach on the response SLA, active ones on the
// resolution SLA. Resolved and closed incidents cannot breach.
func (i *Incident) IsSLABreached(now time.Time) bool {
	age := now.Sub(i.CreatedAt)
	switch i.Status {
	case IncidentStatusNew:
		return age > i.SLAResponseTime
	case IncidentStatusInProgress, IncidentStatusReopened:
		return age > i.SLAResolutionTime
	default:
		return false
	}
}

func (Incident) TableName() string {
	return "incidents"
}

// TimelineEvent is an append-only history entry on an incident
type TimelineEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IncidentID uint      `gorm:"not null;index" json:"incident_id"`
	Actor      string    `gorm:"size:128" json:"actor"`
	Event      string    `gorm:"size:64;not null" json:"event"` // e.g. "created", "status_changed", "reopened"
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

func (TimelineEvent) TableName() string {
	return "timeline_events"
}

// Evidence associates an externally stored evidence item with an incident.
// Only the reference is recorded; content is never inspected here.
type Evidence struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IncidentID uint      `gorm:"not null;index" json:"incident_id"`
	Reference  string    `gorm:"size:255;not null" json:"reference"` // opaque id in the evidence store
	Kind       string    `gorm:"size:64" json:"kind"`                // e.g. "pcap", "memory_dump", "screenshot"
	Filename   string    `gorm:"size:255" json:"filename"`
	AddedBy    string    `gorm:"size:128" json:"added_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Evidence) TableName() string {
	return "evidence"
}

// NotificationStatus represents delivery status of a notification record
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped" // channel not configured
)

// Notification records a notification emitted for an incident
type Notification struct {
	ID         uint               `gorm:"primaryKey" json:"id"`
	IncidentID uint               `gorm:"not null;index" json:"incident_id"`
	Channel    string             `gorm:"size:128" json:"channel"`
	Kind       string             `gorm:"size:64;index" json:"kind"` // e.g. "incident_created", "sla_breach"
	Message    string             `gorm:"type:text" json:"message"`
	Status     NotificationStatus `gorm:"type:varchar(16);not null" json:"status"`
	Error      string             `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// PostMortem is the generated post-incident report for a terminal incident
type PostMortem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IncidentID uint      `gorm:"uniqueIndex;not null" json:"incident_id"`
	Summary    string    `gorm:"type:text" json:"summary"`
	Details    string    `gorm:"type:text" json:"details"` // rendered timeline + workflow execution log
	CreatedBy  string    `gorm:"size:128" json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (PostMortem) TableName() string {
	return "post_mortems"
}

// ========== Workflow Models ==========

// WorkflowStatus represents the status of a response workflow
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusPaused    WorkflowStatus = "paused"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// IsTerminal reports whether the workflow status permits no further activity
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// TaskStatus represents the status of a single workflow task
type TaskStatus string

const (
	TaskStatusPending          TaskStatus = "pending"
	TaskStatusRunning          TaskStatus = "running"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusSkipped          TaskStatus = "skipped"
	TaskStatusRequiresApproval TaskStatus = "requires_approval"
)

// Workflow represents an ordered remediation task sequence, optionally
// attached to one incident
type Workflow struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UUID             string         `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	Description      string         `gorm:"type:text" json:"description"`
	IncidentID       *uint          `gorm:"index" json:"incident_id,omitempty"`
	Status           WorkflowStatus `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	CurrentTaskIndex int            `json:"current_task_index"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// Relationships
	Tasks      []WorkflowTask     `gorm:"foreignKey:WorkflowID" json:"tasks,omitempty"`
	LogEntries []WorkflowLogEntry `gorm:"foreignKey:WorkflowID" json:"log_entries,omitempty"`
}

func (Workflow) TableName() string {
	return "workflows"
}

// WorkflowTask is one step of a workflow. Tasks are index-addressed inside
// their workflow and execute strictly in Position order.
type WorkflowTask struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	WorkflowID uint   `gorm:"not null;index" json:"workflow_id"`
	Position   int    `gorm:"not null" json:"position"`
	Name       string `gorm:"type:varchar(255);not null" json:"name"`
	Action     string `gorm:"size:64;not null" json:"action"` // action key resolved by the executor
	Parameters JSONB  `gorm:"type:jsonb" json:"parameters"`

	Status           TaskStatus `gorm:"type:varchar(32);not null;default:'pending'" json:"status"`
	RequiresApproval bool       `gorm:"default:false" json:"requires_approval"`
	Approved         bool       `gorm:"default:false" json:"approved"`
	ApprovedBy       string     `gorm:"size:128" json:"approved_by,omitempty"`

	TimeoutSeconds int `gorm:"default:60" json:"timeout_seconds"`
	RetryCount     int `gorm:"default:0" json:"retry_count"`
	MaxRetries     int `gorm:"default:0" json:"max_retries"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `gorm:"type:text" json:"result,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (WorkflowTask) TableName() string {
	return "workflow_tasks"
}

// Timeout returns the task timeout as a duration
func (t *WorkflowTask) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// WorkflowLogEntry is one entry of a workflow's append-only execution log.
// Entries are only ever created, never updated or deleted.
type WorkflowLogEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	WorkflowID uint      `gorm:"not null;index" json:"workflow_id"`
	Timestamp  time.Time `gorm:"not null" json:"timestamp"`
	Level      string    `gorm:"size:16;not null" json:"level"` // info, warn, error
	Message    string    `gorm:"type:text;not null" json:"message"`
	Data       JSONB     `gorm:"type:jsonb" json:"data,omitempty"`
}

func (WorkflowLogEntry) TableName() string {
	return "workflow_log_entries"
}

// GetSeverityEmoji returns a Slack emoji for the incident severity
func GetSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityHigh:
		return ":large_orange_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
