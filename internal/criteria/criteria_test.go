package criteria

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func history(ages ...time.Duration) []belief.HistoryEntry {
	out := make([]belief.HistoryEntry, 0, len(ages))
	for _, a := range ages {
		out = append(out, belief.HistoryEntry{Event: belief.SharesContent, Persona: belief.Missionary, Timestamp: now.Add(-a)})
	}
	return out
}

func TestFullConversionNeedsThree(t *testing.T) {
	set := FullConversion()

	ev := set.Evaluate(Subject{Composite: 80, Flags: map[string]bool{FlagTokenInvestment: true}, Now: now})
	if ev.Satisfied {
		t.Fatalf("two criteria should not satisfy: %v", ev.Met)
	}

	ev = set.Evaluate(Subject{Composite: 80, ReferralMade: true, Flags: map[string]bool{FlagTokenInvestment: true}, Now: now})
	if !ev.Satisfied {
		t.Fatal("three criteria should satisfy")
	}
	want := []string{"belief_score_threshold", "token_investment", "referral_activity"}
	if len(ev.Met) != len(want) {
		t.Fatalf("met = %v, want %v", ev.Met, want)
	}
	for i := range want {
		if ev.Met[i] != want[i] {
			t.Fatalf("met[%d] = %s, want %s", i, ev.Met[i], want[i])
		}
	}
	if len(ev.Statuses) != 5 {
		t.Fatalf("expected 5 statuses, got %d", len(ev.Statuses))
	}
}

func TestPartialOngoingEngagementWindow(t *testing.T) {
	set := PartialConversion()

	old := Subject{Composite: 61, History: history(8*24*time.Hour, 9*24*time.Hour, 10*24*time.Hour), Now: now}
	if ev := set.Evaluate(old); ev.Satisfied {
		t.Fatalf("stale interactions should not count: %v", ev.Met)
	}

	recent := Subject{Composite: 61, History: history(time.Hour, 2*time.Hour, 6*24*time.Hour), Now: now}
	ev := set.Evaluate(recent)
	if !ev.Satisfied {
		t.Fatalf("expected partial, got %v", ev.Met)
	}
	if ev.Met[1] != "ongoing_engagement" {
		t.Fatalf("unexpected order %v", ev.Met)
	}
}

func TestThresholdBoundaryInclusive(t *testing.T) {
	c := CompositeAtLeast(75)
	if !c.Check(Subject{Composite: 75}) {
		t.Fatal("75 should meet a 75 threshold")
	}
	if c.Check(Subject{Composite: 74.999}) {
		t.Fatal("74.999 should not meet a 75 threshold")
	}
}
