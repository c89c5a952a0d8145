package services

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/errs"
	"github.com/incidra/incidra/internal/scoring"
)

// Default SLA durations by severity: response / resolution.
var slaDefaults = map[database.Severity][2]time.Duration{
	database.SeverityCritical: {15 * time.Minute, 4 * time.Hour},
	database.SeverityHigh:     {30 * time.Minute, 8 * time.Hour},
	database.SeverityMedium:   {2 * time.Hour, 24 * time.Hour},
	database.SeverityLow:      {8 * time.Hour, 72 * time.Hour},
}

// IncidentService handles the incident lifecycle: creation, assignment,
// status transitions, scoring and SLA tracking.
type IncidentService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIncidentService creates a new incident service
func NewIncidentService(db *gorm.DB) *IncidentService {
	return &IncidentService{db: db, now: time.Now}
}

// SetClock overrides the service's time source, for tests.
func (s *IncidentService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateIncidentInput carries the caller-supplied fields for a new incident.
type CreateIncidentInput struct {
	Title          string
	Description    string
	Category       string
	Severity       database.Severity
	AssignedTo     string
	AffectedAssets []string
	RelatedThreats []string

	// Optional SLA overrides; zero means the severity default applies.
	SLAResponseTime   time.Duration
	SLAResolutionTime time.Duration
}

// Create validates the input, fixes the SLA durations from the severity,
// computes the initial scores and records the creation on the timeline.
func (s *IncidentService) Create(in CreateIncidentInput, actor string) (*database.Incident, error) {
	if in.Title == "" {
		return nil, errs.NewValidation("title", "is required")
	}
	severity := in.Severity
	if severity == "" {
		severity = database.SeverityMedium
	}
	valid := false
	for _, sv := range database.ValidSeverities() {
		if severity == sv {
			valid = true
			break
		}
	}
	if !valid {
		return nil, errs.NewValidation("severity", fmt.Sprintf("unknown severity %q", severity))
	}

	defaults := slaDefaults[severity]
	responseSLA := in.SLAResponseTime
	if responseSLA <= 0 {
		responseSLA = defaults[0]
	}
	resolutionSLA := in.SLAResolutionTime
	if resolutionSLA <= 0 {
		resolutionSLA = defaults[1]
	}

	now := s.now()
	inc := &database.Incident{
		UUID:              uuid.New().String(),
		Title:             in.Title,
		Description:       in.Description,
		Category:          in.Category,
		Status:            database.IncidentStatusNew,
		Severity:          severity,
		AssignedTo:        in.AssignedTo,
		AffectedAssets:    in.AffectedAssets,
		RelatedThreats:    in.RelatedThreats,
		SLAResponseTime:   responseSLA,
		SLAResolutionTime: resolutionSLA,
		CreatedAt:         now,
	}
	inc.ImpactScore, inc.UrgencyScore, inc.PriorityScore = scoring.Compute(inc, now)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inc).Error; err != nil {
			return err
		}
		return tx.Create(&database.TimelineEvent{
			IncidentID: inc.ID,
			Actor:      actor,
			Event:      "created",
			Message:    fmt.Sprintf("incident created with severity %s", severity),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create incident: %w", err)
	}

	log.Printf("Created incident %s (severity=%s, priority=%.1f)", inc.UUID, inc.Severity, inc.PriorityScore)
	return inc, nil
}

// GetByUUID returns an incident by UUID
func (s *IncidentService) GetByUUID(incidentUUID string) (*database.Incident, error) {
	var inc database.Incident
	err := s.db.Where("uuid = ?", incidentUUID).First(&inc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status     database.IncidentStatus
	Severity   database.Severity
	Category   string
	AssignedTo string
	Limit      int
	Offset     int
}

// List returns incidents ordered by priority (highest first), then severity,
// then age.
func (s *IncidentService) List(f ListFilter) ([]database.Incident, int64, error) {
	query := s.db.Model(&database.Incident{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.AssignedTo != "" {
		query = query.Where("assigned_to = ?", f.AssignedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var incidents []database.Incident
	err := query.Order("priority_score DESC").Order("created_at ASC").
		Limit(limit).Offset(f.Offset).Find(&incidents).Error
	return incidents, total, err
}

// Assign puts an incident in the assignee's hands. Assigning a NEW incident
// moves it to IN_PROGRESS, which stops the response SLA clock.
func (s *IncidentService) Assign(incidentUUID, assignee, actor string) (*database.Incident, error) {
	if assignee == "" {
		return nil, errs.NewValidation("assignee", "is required")
	}
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if inc.IsTerminal() {
		return nil, &errs.InvalidTransitionError{From: string(inc.Status), To: string(inc.Status)}
	}

	updates := map[string]interface{}{"assigned_to": assignee}
	if inc.Status == database.IncidentStatusNew {
		updates["status"] = database.IncidentStatusInProgress
		inc.Status = database.IncidentStatusInProgress
	}
	inc.AssignedTo = assignee

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(inc).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&database.TimelineEvent{
			IncidentID: inc.ID,
			Actor:      actor,
			Event:      "assigned",
			Message:    fmt.Sprintf("assigned to %s", assignee),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// Transition moves the incident to a new status, enforcing the legal
// transition graph. Reopening requires a reason; resolving and closing stamp
// their timestamps, reopening clears them.
func (s *IncidentService) Transition(incidentUUID string, to database.IncidentStatus, actor, reason string) (*database.Incident, error) {
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if !database.CanTransition(inc.Status, to) {
		return nil, &errs.InvalidTransitionError{From: string(inc.Status), To: string(to)}
	}
	if to == database.IncidentStatusReopened && reason == "" {
		return nil, errs.NewValidation("reason", "is required when reopening")
	}

	now := s.now()
	updates := map[string]interface{}{"status": to}
	switch to {
	case database.IncidentStatusResolved:
		updates["resolved_at"] = now
		inc.ResolvedAt = &now
	case database.IncidentStatusClosed:
		updates["closed_at"] = now
		inc.ClosedAt = &now
	case database.IncidentStatusReopened:
		updates["resolved_at"] = nil
		updates["closed_at"] = nil
		updates["sla_breach_notified_at"] = nil
		inc.ResolvedAt = nil
		inc.ClosedAt = nil
		inc.SLABreachNotifiedAt = nil
	}
	from := inc.Status
	inc.Status = to

	message := fmt.Sprintf("status changed from %s to %s", from, to)
	if reason != "" {
		message += ": " + reason
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(inc).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&database.TimelineEvent{
			IncidentID: inc.ID,
			Actor:      actor,
			Event:      "status_changed",
			Message:    message,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Incident %s: %s -> %s", inc.UUID, from, to)
	return inc, nil
}

// Resolve marks the incident resolved.
func (s *IncidentService) Resolve(incidentUUID, actor string) (*database.Incident, error) {
	return s.Transition(incidentUUID, database.IncidentStatusResolved, actor, "")
}

// Close marks the incident closed. Closed is terminal.
func (s *IncidentService) Close(incidentUUID, actor string) (*database.Incident, error) {
	return s.Transition(incidentUUID, database.IncidentStatusClosed, actor, "")
}

// Reopen reopens a resolved or closed incident. A reason is mandatory.
func (s *IncidentService) Reopen(incidentUUID, actor, reason string) (*database.Incident, error) {
	return s.Transition(incidentUUID, database.IncidentStatusReopened, actor, reason)
}

// Reprioritize recomputes the incident's scores from its current state.
// Terminal incidents keep their final scores.
func (s *IncidentService) Reprioritize(incidentUUID string) (*database.Incident, error) {
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if inc.IsTerminal() {
		return inc, nil
	}

	inc.ImpactScore, inc.UrgencyScore, inc.PriorityScore = scoring.Compute(inc, s.now())
	err = s.db.Model(inc).Updates(map[string]interface{}{
		"impact_score":   inc.ImpactScore,
		"urgency_score":  inc.UrgencyScore,
		"priority_score": inc.PriorityScore,
	}).Error
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// LinkIncident records a one-way link from one incident to another. The link
// lives on the acting incident only; the target is not modified.
func (s *IncidentService) LinkIncident(incidentUUID, targetUUID, actor string) (*database.Incident, error) {
	if incidentUUID == targetUUID {
		return nil, errs.NewValidation("target", "cannot link an incident to itself")
	}
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetByUUID(targetUUID); err != nil {
		return nil, err
	}
	if inc.RelatedIncidents.Contains(targetUUID) {
		return inc, nil
	}

	inc.RelatedIncidents = append(inc.RelatedIncidents, targetUUID)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(inc).Update("related_incidents", inc.RelatedIncidents).Error; err != nil {
			return err
		}
		return tx.Create(&database.TimelineEvent{
			IncidentID: inc.ID,
			Actor:      actor,
			Event:      "linked",
			Message:    fmt.Sprintf("linked to incident %s", targetUUID),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// LinkThreat attaches a threat reference to the incident and recomputes the
// scores, since related threats raise the impact.
func (s *IncidentService) LinkThreat(incidentUUID, threatRef, actor string) (*database.Incident, error) {
	if threatRef == "" {
		return nil, errs.NewValidation("threat", "is required")
	}
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if inc.RelatedThreats.Contains(threatRef) {
		return inc, nil
	}

	inc.RelatedThreats = append(inc.RelatedThreats, threatRef)
	inc.ImpactScore, inc.UrgencyScore, inc.PriorityScore = scoring.Compute(inc, s.now())

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(inc).Updates(map[string]interface{}{
			"related_threats": inc.RelatedThreats,
			"impact_score":    inc.ImpactScore,
			"urgency_score":   inc.UrgencyScore,
			"priority_score":  inc.PriorityScore,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&database.TimelineEvent{
			IncidentID: inc.ID,
			Actor:      actor,
			Event:      "threat_linked",
			Message:    fmt.Sprintf("linked threat %s", threatRef),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// SLAInfo is the derived SLA state of an incident at a point in time.
type SLAInfo struct {
	Breached           bool          `json:"breached"`
	ResponseDeadline   time.Time     `json:"response_deadline"`
	ResolutionDeadline time.Time     `json:"resolution_deadline"`
	TimeRemaining      time.Duration `json:"time_remaining"`
}

// SLAStatus derives the incident's SLA state. Nothing is stored; the same
// incident at a later time can report a different state.
func (s *IncidentService) SLAStatus(incidentUUID string) (*SLAInfo, error) {
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	info := &SLAInfo{
		Breached:           inc.IsSLABreached(now),
		ResponseDeadline:   inc.CreatedAt.Add(inc.SLAResponseTime),
		ResolutionDeadline: inc.CreatedAt.Add(inc.SLAResolutionTime),
	}
	switch inc.Status {
	case database.IncidentStatusNew:
		info.TimeRemaining = info.ResponseDeadline.Sub(now)
	case database.IncidentStatusInProgress, database.IncidentStatusReopened:
		info.TimeRemaining = info.ResolutionDeadline.Sub(now)
	}
	return info, nil
}

// Timeline returns the incident's timeline oldest first.
func (s *IncidentService) Timeline(incidentUUID string) ([]database.TimelineEvent, error) {
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	var events []database.TimelineEvent
	err = s.db.Where("incident_id = ?", inc.ID).Order("id ASC").Find(&events).Error
	return events, err
}

// AddTimelineEvent appends a free-form note to the incident's timeline.
func (s *IncidentService) AddTimelineEvent(incidentUUID, actor, event, message string) (*database.TimelineEvent, error) {
	if event == "" {
		return nil, errs.NewValidation("event", "is required")
	}
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	entry := &database.TimelineEvent{
		IncidentID: inc.ID,
		Actor:      actor,
		Event:      event,
		Message:    message,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// AddEvidence records a reference to an externally stored evidence item.
func (s *IncidentService) AddEvidence(incidentUUID, reference, kind, filename, addedBy string) (*database.Evidence, error) {
	if reference == "" {
		return nil, errs.NewValidation("reference", "is required")
	}
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	ev := &database.Evidence{
		IncidentID: inc.ID,
		Reference:  reference,
		Kind:       kind,
		Filename:   filename,
		AddedBy:    addedBy,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ev).Error; err != nil {
			return err
		}
		return tx.Create(&database.TimelineEvent{
			IncidentID: inc.ID,
			Actor:      addedBy,
			Event:      "evidence_added",
			Message:    fmt.Sprintf("evidence %s attached", reference),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEvidence returns the incident's evidence references.
func (s *IncidentService) ListEvidence(incidentUUID string) ([]database.Evidence, error) {
	inc, err := s.GetByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	var items []database.Evidence
	err = s.db.Where("incident_id = ?", inc.ID).Order("id ASC").Find(&items).Error
	return items, err
}
