// Package scoring computes derived impact, urgency and priority scores for
// incidents. All functions are pure: the clock is an explicit argument and
// identical inputs always produce identical outputs.
package scoring

import (
	"time"

	"github.com/incidra/incidra/internal/database"
)

// Scores in all dimensions are normalized to [0, 100].
const maxScore = 100.0

// severityWeights maps severity to its base contribution in [0, 1].
var severityWeights = map[database.Severity]float64{
	database.SeverityCritical: 1.0,
	database.SeverityHigh:     0.75,
	database.SeverityMedium:   0.5,
	database.SeverityLow:      0.25,
}

// categoryWeights captures how time-critical each incident category is.
// Unknown categories fall back to 0.5.
var categoryWeights = map[string]float64{
	"intrusion":     1.0,
	"malware":       0.9,
	"data_breach":   1.0,
	"ransomware":    1.0,
	"ddos":          0.8,
	"phishing":      0.6,
	"vulnerability": 0.5,
	"policy":        0.3,
	"other":         0.4,
}

// assetSaturation is the affected-asset count at which the asset component
// of the impact score reaches its maximum.
const assetSaturation = 10

// severityWeight returns the weight for a severity, defaulting unknown or
// missing values to medium rather than erroring.
func severityWeight(s database.Severity) float64 {
	if w, ok := severityWeights[s]; ok {
		return w
	}
	return severityWeights[database.SeverityMedium]
}

// categoryWeight returns the criticality weight for a category.
func categoryWeight(c string) float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return 0.5
}

// ImpactScore computes a 0-100 impact score from severity, affected-asset
// count and related-threat presence. It is monotonically increasing in each
// input.
func ImpactScore(inc *database.Incident) float64 {
	sev := severityWeight(inc.Severity)

	assets := float64(len(inc.AffectedAssets)) / assetSaturation
	if assets > 1 {
		assets = 1
	}

	threats := 0.0
	if len(inc.RelatedThreats) > 0 {
		threats = 1.0
	}

	return maxScore * (0.5*sev + 0.3*assets + 0.2*threats)
}

// UrgencyScore computes a 0-100 urgency score from elapsed time relative to
// the response SLA and the category criticality weight. Urgency grows as the
// SLA clock runs down and saturates once the response SLA is exceeded.
func UrgencyScore(inc *database.Incident, now time.Time) float64 {
	elapsed := 0.0
	if inc.SLAResponseTime > 0 {
		elapsed = float64(now.Sub(inc.CreatedAt)) / float64(inc.SLAResponseTime)
		if elapsed > 1 {
			elapsed = 1
		}
		if elapsed < 0 {
			elapsed = 0
		}
	}

	return maxScore * (0.6*elapsed + 0.4*categoryWeight(inc.Category))
}

// PriorityScore combines impact and urgency into the composite priority.
// Impact dominates: a weighted average of 60% impact, 40% urgency.
func PriorityScore(impact, urgency float64) float64 {
	return 0.6*impact + 0.4*urgency
}

// Compute recomputes all three scores for an incident snapshot and returns
// them without mutating the incident. Safe to call on every mutation.
func Compute(inc *database.Incident, now time.Time) (impact, urgency, priority float64) {
	impact = ImpactScore(inc)
	urgency = UrgencyScore(inc, now)
	priority = PriorityScore(impact, urgency)
	return impact, urgency, priority
}

// Less orders incidents for triage: higher priority score first, ties broken
// by severity descending, then created_at ascending (older incidents win).
func Less(a, b *database.Incident) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	wa, wb := severityWeight(a.Severity), severityWeight(b.Severity)
	if wa != wb {
		return wa > wb
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
