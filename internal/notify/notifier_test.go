package notify

import (
	"fmt"
	"testing"

	"github.com/slack-go/slack"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
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

type fakeSlack struct {
	channels []string
	fail     bool
}

func (f *fakeSlack) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	if f.fail {
		return "", "", fmt.Errorf("channel_not_found")
	}
	return channelID, "123.456", nil
}

func createIncident(t *testing.T, db *gorm.DB) *database.Incident {
	t.Helper()
	inc := &database.Incident{
		UUID:     "inc-1",
		Title:    "Phishing campaign",
		Severity: database.SeverityHigh,
		Category: "phishing",
	}
	if err := db.Create(inc).Error; err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}
	return inc
}

func TestIncidentCreated_Sent(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeSlack{}
	n := NewWithClient(db, client, "#incidents")

	inc := createIncident(t, db)
	n.IncidentCreated(inc)

	if len(client.channels) != 1 || client.channels[0] != "#incidents" {
		t.Errorf("expected one message to #incidents, got %v", client.channels)
	}

	records, err := n.ListForIncident(inc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 notification record, got %d", len(records))
	}
	if records[0].Status != database.NotificationStatusSent {
		t.Errorf("expected sent, got %s", records[0].Status)
	}
	if records[0].Kind != "incident_created" {
		t.Errorf("expected incident_created kind, got %s", records[0].Kind)
	}
}

func TestDeliver_FailureRecorded(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeSlack{fail: true}
	n := NewWithClient(db, client, "#incidents")

	inc := createIncident(t, db)
	n.SLABreach(inc)

	records, _ := n.ListForIncident(inc.ID)
	if len(records) != 1 {
		t.Fatalf("expected 1 notification record, got %d", len(records))
	}
	if records[0].Status != database.NotificationStatusFailed {
		t.Errorf("expected failed, got %s", records[0].Status)
	}
	if records[0].Error == "" {
		t.Error("expected delivery error recorded")
	}
}

func TestDeliver_SkippedWithoutClient(t *testing.T) {
	db := setupTestDB(t)
	n := New(db, "", "#incidents")

	inc := createIncident(t, db)
	n.IncidentCreated(inc)
	n.WorkflowEvent(inc.ID, "contain-host", "completed")

	records, _ := n.ListForIncident(inc.ID)
	if len(records) != 2 {
		t.Fatalf("expected 2 notification records, got %d", len(records))
	}
	for _, r := range records {
		if r.Status != database.NotificationStatusSkipped {
			t.Errorf("expected skipped, got %s", r.Status)
		}
	}
}

func TestPost_Unconfigured(t *testing.T) {
	db := setupTestDB(t)
	n := New(db, "", "")

	if err := n.Post("", "hello"); err == nil {
		t.Error("expected error when slack is not configured")
	}
}
