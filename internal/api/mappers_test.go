package api

import (
	"testing"
	"time"

	"github.com/incidra/incidra/internal/database"
)

func TestIncidentToListItem(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	inc := database.Incident{
		ID:              7,
		UUID:            "abc",
		Title:           "Phishing wave",
		Status:          database.IncidentStatusNew,
		Severity:        database.SeverityHigh,
		PriorityScore:   73.5,
		SLAResponseTime: 30 * time.Minute,
		CreatedAt:       created,
	}

	item := IncidentToListItem(inc, time.Now())
	if item.UUID != "abc" || item.Title != "Phishing wave" {
		t.Errorf("unexpected mapping: %+v", item)
	}
	// NEW and an hour old against a 30 minute response SLA.
	if !item.SLABreached {
		t.Error("expected SLA breach derived at mapping time")
	}

	fresh := inc
	fresh.CreatedAt = time.Now()
	item = IncidentToListItem(fresh, time.Now())
	if item.SLABreached {
		t.Error("expected no breach for a fresh incident")
	}
}

func TestIncidentsToListItems(t *testing.T) {
	items := IncidentsToListItems([]database.Incident{{UUID: "a"}, {UUID: "b"}}, time.Now())
	if len(items) != 2 || items[0].UUID != "a" || items[1].UUID != "b" {
		t.Errorf("unexpected mapping: %+v", items)
	}
}
