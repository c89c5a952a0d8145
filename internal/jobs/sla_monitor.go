package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
)

// Breacher receives SLA breach notifications.
type Breacher interface {
	SLABreach(inc *database.Incident)
}

// SLAMonitor periodically scans open incidents for SLA breaches. Each breach
// is announced once; sla_breach_notified_at suppresses repeats.
type SLAMonitor struct {
	db       *gorm.DB
	notifier Breacher
	now      func() time.Time
}

// NewSLAMonitor creates a new SLA monitor
func NewSLAMonitor(db *gorm.DB, notifier Breacher) *SLAMonitor {
	return &SLAMonitor{db: db, notifier: notifier, now: time.Now}
}

// SetClock overrides the monitor's time source, for tests.
func (m *SLAMonitor) SetClock(now func() time.Time) {
	m.now = now
}

// CheckAndNotify scans open incidents and notifies newly breached ones.
// Returns the number of breaches announced.
func (m *SLAMonitor) CheckAndNotify() (int, error) {
	var incidents []database.Incident
	err := m.db.Where("status IN ? AND sla_breach_notified_at IS NULL", []database.IncidentStatus{
		database.IncidentStatusNew,
		database.IncidentStatusInProgress,
		database.IncidentStatusReopened,
	}).Find(&incidents).Error
	if err != nil {
		return 0, err
	}

	now := m.now()
	notified := 0
	for _, incident := range incidents {
		if !incident.IsSLABreached(now) {
			continue
		}

		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&incident).Update("sla_breach_notified_at", now).Error; err != nil {
				return err
			}
			return tx.Create(&database.TimelineEvent{
				IncidentID: incident.ID,
				Actor:      "sla-monitor",
				Event:      "sla_breached",
				Message:    "SLA deadline exceeded",
			}).Error
		})
		if err != nil {
			log.Printf("Failed to mark SLA breach for incident %s: %v", incident.UUID, err)
			continue
		}

		if m.notifier != nil {
			m.notifier.SLABreach(&incident)
		}
		notified++
		log.Printf("SLA breach on incident %s (status=%s, severity=%s)",
			incident.UUID, incident.Status, incident.Severity)
	}

	return notified, nil
}

// Start begins the periodic monitoring
func (m *SLAMonitor) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			notified, err := m.CheckAndNotify()
			if err != nil {
				log.Printf("SLA monitor error: %v", err)
			} else if notified > 0 {
				log.Printf("SLA monitor: announced %d breaches", notified)
			}
		case <-stop:
			log.Println("SLA monitor stopped")
			return
		}
	}
}
