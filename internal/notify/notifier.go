// Package notify delivers incident notifications to Slack and records every
// attempt in the notifications table, whether it was sent, failed or skipped.
package notify

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
)

// slackAPI is the slice of the Slack client the notifier needs.
type slackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier sends incident notifications. With no Slack client configured it
// still records each notification as skipped, so the audit trail is complete.
type Notifier struct {
	db      *gorm.DB
	client  slackAPI
	channel string
}

// New creates a notifier. botToken may be empty, in which case deliveries are
// recorded as skipped.
func New(db *gorm.DB, botToken, channel string) *Notifier {
	n := &Notifier{db: db, channel: channel}
	if botToken != "" {
		n.client = slack.New(botToken)
	}
	return n
}

// NewWithClient wires an existing client, for tests.
func NewWithClient(db *gorm.DB, client slackAPI, channel string) *Notifier {
	return &Notifier{db: db, client: client, channel: channel}
}

// Post sends a raw message to the configured channel.
func (n *Notifier) Post(channel, message string) error {
	if channel == "" {
		channel = n.channel
	}
	if n.client == nil || channel == "" {
		return fmt.Errorf("slack is not configured")
	}
	_, _, err := n.client.PostMessage(channel, slack.MsgOptionText(message, false))
	return err
}

// IncidentCreated announces a new incident.
func (n *Notifier) IncidentCreated(inc *database.Incident) {
	message := fmt.Sprintf("%s *New incident:* %s\nSeverity: %s | Category: %s | Priority: %.0f",
		database.GetSeverityEmoji(inc.Severity), inc.Title, inc.Severity, inc.Category, inc.PriorityScore)
	n.deliver(inc.ID, "incident_created", message)
}

// SLABreach announces an SLA breach.
func (n *Notifier) SLABreach(inc *database.Incident) {
	message := fmt.Sprintf("%s *SLA breach:* %s\nStatus: %s | Severity: %s | Assigned: %s",
		database.GetSeverityEmoji(inc.Severity), inc.Title, inc.Status, inc.Severity, orUnassigned(inc.AssignedTo))
	n.deliver(inc.ID, "sla_breach", message)
}

// WorkflowEvent announces a workflow state change for an incident.
func (n *Notifier) WorkflowEvent(incidentID uint, workflowName, event string) {
	message := fmt.Sprintf("⚙️ Workflow *%s*: %s", workflowName, event)
	n.deliver(incidentID, "workflow_event", message)
}

func orUnassigned(assignee string) string {
	if assignee == "" {
		return "unassigned"
	}
	return assignee
}

// deliver sends the message and records the outcome. Delivery failures are
// logged and recorded but never propagate; notifications are best-effort.
func (n *Notifier) deliver(incidentID uint, kind, message string) {
	record := database.Notification{
		IncidentID: incidentID,
		Channel:    n.channel,
		Kind:       kind,
		Message:    message,
	}

	switch {
	case n.client == nil || n.channel == "":
		record.Status = database.NotificationStatusSkipped
	default:
		_, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(message, false))
		if err != nil {
			record.Status = database.NotificationStatusFailed
			record.Error = err.Error()
			log.Printf("Failed to send %s notification: %v", kind, err)
		} else {
			record.Status = database.NotificationStatusSent
		}
	}

	if err := n.db.Create(&record).Error; err != nil {
		log.Printf("Failed to record %s notification: %v", kind, err)
	}
}

// ListForIncident returns the notifications recorded for an incident.
func (n *Notifier) ListForIncident(incidentID uint) ([]database.Notification, error) {
	var records []database.Notification
	err := n.db.Where("incident_id = ?", incidentID).Order("id ASC").Find(&records).Error
	return records, err
}
