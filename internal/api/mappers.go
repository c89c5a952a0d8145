package api

import (
	"time"

	"github.com/incidra/incidra/internal/database"
)

// IncidentToListItem converts a database Incident to a compact list
// representation. The SLA state is derived at mapping time.
func IncidentToListItem(i database.Incident, now time.Time) IncidentListItem {
	return IncidentListItem{
		ID:            i.ID,
		UUID:          i.UUID,
		Title:         i.Title,
		Category:      i.Category,
		Status:        i.Status,
		Severity:      i.Severity,
		AssignedTo:    i.AssignedTo,
		PriorityScore: i.PriorityScore,
		SLABreached:   i.IsSLABreached(now),
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

// IncidentsToListItems converts a slice of database Incidents to list items.
func IncidentsToListItems(incidents []database.Incident, now time.Time) []IncidentListItem {
	items := make([]IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = IncidentToListItem(inc, now)
	}
	return items
}
