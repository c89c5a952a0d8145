package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/errs"
)

// PostMortemService builds post-incident reports out of an incident's
// timeline and workflow execution logs.
type PostMortemService struct {
	db *gorm.DB
}

// NewPostMortemService creates a new post-mortem service
func NewPostMortemService(db *gorm.DB) *PostMortemService {
	return &PostMortemService{db: db}
}

// Get returns the post-mortem for an incident, if one has been built.
func (s *PostMortemService) Get(incidentUUID string) (*database.PostMortem, error) {
	inc, err := s.incident(incidentUUID)
	if err != nil {
		return nil, err
	}
	var pm database.PostMortem
	err = s.db.Where("incident_id = ?", inc.ID).First(&pm).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

// Build assembles a post-mortem for a resolved or closed incident. Rebuilding
// replaces the previous report.
func (s *PostMortemService) Build(incidentUUID, summary, createdBy string) (*database.PostMortem, error) {
	inc, err := s.incident(incidentUUID)
	if err != nil {
		return nil, err
	}
	if inc.Status != database.IncidentStatusResolved && inc.Status != database.IncidentStatusClosed {
		return nil, errs.NewValidation("status", "post-mortem requires a resolved or closed incident")
	}

	details, err := s.renderDetails(inc)
	if err != nil {
		return nil, err
	}

	pm := &database.PostMortem{
		IncidentID: inc.ID,
		Summary:    summary,
		Details:    details,
		CreatedBy:  createdBy,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("incident_id = ?", inc.ID).Delete(&database.PostMortem{}).Error; err != nil {
			return err
		}
		return tx.Create(pm).Error
	})
	if err != nil {
		return nil, err
	}
	return pm, nil
}

func (s *PostMortemService) incident(incidentUUID string) (*database.Incident, error) {
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

// renderDetails produces the report body: header, full timeline, then the
// execution log of every workflow that ran for the incident.
func (s *PostMortemService) renderDetails(inc *database.Incident) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Post-Mortem: %s\n\n", inc.Title)
	fmt.Fprintf(&b, "Severity: %s\n", inc.Severity)
	fmt.Fprintf(&b, "Category: %s\n", inc.Category)
	fmt.Fprintf(&b, "Opened: %s\n", inc.CreatedAt.Format(time.RFC3339))
	if inc.ResolvedAt != nil {
		fmt.Fprintf(&b, "Resolved: %s (time to resolve: %s)\n",
			inc.ResolvedAt.Format(time.RFC3339), inc.ResolvedAt.Sub(inc.CreatedAt).Round(time.Second))
	}
	if inc.ClosedAt != nil {
		fmt.Fprintf(&b, "Closed: %s\n", inc.ClosedAt.Format(time.RFC3339))
	}
	if len(inc.AffectedAssets) > 0 {
		fmt.Fprintf(&b, "Affected assets: %s\n", strings.Join(inc.AffectedAssets, ", "))
	}
	if len(inc.RelatedThreats) > 0 {
		fmt.Fprintf(&b, "Related threats: %s\n", strings.Join(inc.RelatedThreats, ", "))
	}

	var events []database.TimelineEvent
	if err := s.db.Where("incident_id = ?", inc.ID).Order("id ASC").Find(&events).Error; err != nil {
		return "", err
	}
	b.WriteString("\n## Timeline\n\n")
	for _, e := range events {
		fmt.Fprintf(&b, "- %s [%s] %s", e.CreatedAt.Format(time.RFC3339), e.Event, e.Message)
		if e.Actor != "" {
			fmt.Fprintf(&b, " (%s)", e.Actor)
		}
		b.WriteString("\n")
	}

	var workflows []database.Workflow
	if err := s.db.Where("incident_id = ?", inc.ID).Order("created_at ASC").Find(&workflows).Error; err != nil {
		return "", err
	}
	for _, wf := range workflows {
		fmt.Fprintf(&b, "\n## Workflow: %s (%s)\n\n", wf.Name, wf.Status)
		var entries []database.WorkflowLogEntry
		if err := s.db.Where("workflow_id = ?", wf.ID).Order("id ASC").Find(&entries).Error; err != nil {
			return "", err
		}
		for _, entry := range entries {
			fmt.Fprintf(&b, "- %s [%s] %s\n",
				entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message)
		}
	}

	return b.String(), nil
}
