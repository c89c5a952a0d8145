package scoring

import (
	"testing"
	"time"

	"github.com/incidra/incidra/internal/database"
)

func baseIncident() *database.Incident {
	return &database.Incident{
		Severity:          database.SeverityMedium,
		Category:          "malware",
		SLAResponseTime:   30 * time.Minute,
		SLAResolutionTime: 4 * time.Hour,
		CreatedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestImpactScore_MonotoneInSeverity(t *testing.T) {
	inc := baseIncident()

	var prev float64 = -1
	for _, sev := range []database.Severity{
		database.SeverityLow,
		database.SeverityMedium,
		database.SeverityHigh,
		database.SeverityCritical,
	} {
		inc.Severity = sev
		score := ImpactScore(inc)
		if score <= prev {
			t.Errorf("expected impact to increase with severity, got %f after %f for %s", score, prev, sev)
		}
		if score < 0 || score > 100 {
			t.Errorf("impact score out of range: %f", score)
		}
		prev = score
	}
}

func TestImpactScore_MonotoneInAssetsAndThreats(t *testing.T) {
	inc := baseIncident()

	noAssets := ImpactScore(inc)
	inc.AffectedAssets = database.StringList{"host-1", "host-2", "host-3"}
	withAssets := ImpactScore(inc)
	if withAssets <= noAssets {
		t.Errorf("expected impact to grow with affected assets: %f vs %f", withAssets, noAssets)
	}

	inc.RelatedThreats = database.StringList{"APT-x"}
	withThreats := ImpactScore(inc)
	if withThreats <= withAssets {
		t.Errorf("expected impact to grow with related threats: %f vs %f", withThreats, withAssets)
	}
}

func TestImpactScore_AssetSaturation(t *testing.T) {
	inc := baseIncident()
	for i := 0; i < 50; i++ {
		inc.AffectedAssets = append(inc.AffectedAssets, "host")
	}
	score := ImpactScore(inc)
	if score > 100 {
		t.Errorf("impact score exceeded range with many assets: %f", score)
	}
}

func TestImpactScore_UnknownSeverityDefaultsToMedium(t *testing.T) {
	inc := baseIncident()
	inc.Severity = database.SeverityMedium
	medium := ImpactScore(inc)

	inc.Severity = database.Severity("bogus")
	if got := ImpactScore(inc); got != medium {
		t.Errorf("expected unknown severity to score as medium: got %f, want %f", got, medium)
	}

	inc.Severity = ""
	if got := ImpactScore(inc); got != medium {
		t.Errorf("expected missing severity to score as medium: got %f, want %f", got, medium)
	}
}

func TestUrgencyScore_GrowsTowardSLA(t *testing.T) {
	inc := baseIncident()

	early := UrgencyScore(inc, inc.CreatedAt.Add(time.Minute))
	late := UrgencyScore(inc, inc.CreatedAt.Add(25*time.Minute))
	breached := UrgencyScore(inc, inc.CreatedAt.Add(2*time.Hour))

	if late <= early {
		t.Errorf("expected urgency to grow as the SLA elapses: %f vs %f", late, early)
	}
	if breached < late {
		t.Errorf("expected urgency not to drop after breach: %f vs %f", breached, late)
	}
	if breached > 100 {
		t.Errorf("urgency out of range: %f", breached)
	}
}

func TestUrgencyScore_CategoryWeight(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)

	intrusion := baseIncident()
	intrusion.Category = "intrusion"
	policy := baseIncident()
	policy.Category = "policy"

	if UrgencyScore(intrusion, now) <= UrgencyScore(policy, now) {
		t.Error("expected intrusion to be more urgent than policy at equal age")
	}
}

func TestCompute_Deterministic(t *testing.T) {
	inc := baseIncident()
	inc.AffectedAssets = database.StringList{"db-1"}
	now := time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC)

	i1, u1, p1 := Compute(inc, now)
	i2, u2, p2 := Compute(inc, now)

	if i1 != i2 || u1 != u2 || p1 != p2 {
		t.Errorf("expected identical scores on identical inputs: (%f,%f,%f) vs (%f,%f,%f)", i1, u1, p1, i2, u2, p2)
	}
}

func TestPriorityScore_SeverityDominates(t *testing.T) {
	// A critical incident with 3 affected assets and a critical category must
	// outrank an otherwise-identical low severity incident with none.
	now := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)

	critical := baseIncident()
	critical.Severity = database.SeverityCritical
	critical.Category = "intrusion"
	critical.AffectedAssets = database.StringList{"a", "b", "c"}

	low := baseIncident()
	low.Severity = database.SeverityLow
	low.Category = "intrusion"

	_, _, pCritical := Compute(critical, now)
	_, _, pLow := Compute(low, now)

	if pCritical <= pLow {
		t.Errorf("expected critical incident to outrank low: %f vs %f", pCritical, pLow)
	}
}

func TestLess_TieBreaks(t *testing.T) {
	older := baseIncident()
	older.PriorityScore = 50
	older.Severity = database.SeverityHigh

	newer := baseIncident()
	newer.PriorityScore = 50
	newer.Severity = database.SeverityHigh
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	if !Less(older, newer) {
		t.Error("expected older incident to win the tie")
	}
	if Less(newer, older) {
		t.Error("expected newer incident to lose the tie")
	}

	// Severity breaks ties before age.
	lowSev := baseIncident()
	lowSev.PriorityScore = 50
	lowSev.Severity = database.SeverityLow

	if !Less(newer, lowSev) {
		t.Error("expected higher severity to win at equal priority")
	}

	// Higher priority always wins.
	highPrio := baseIncident()
	highPrio.PriorityScore = 80
	if !Less(highPrio, older) {
		t.Error("expected higher priority score to order first")
	}
}
