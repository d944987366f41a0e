package belief

import "testing"

func TestAnalyzeFlatVector(t *testing.T) {
	m := NewModel(nil)
	a := m.Analyze(NewState(Uniform(40), t0))
	if a.Coherence != "high" || a.StdDev != 0 {
		t.Fatalf("flat vector: coherence %s std %f", a.Coherence, a.StdDev)
	}
	if a.Strengths[0].Dimension != Belief || a.Weaknesses[1].Dimension != Financial {
		t.Fatalf("ties should keep canonical order: %+v / %+v", a.Strengths, a.Weaknesses)
	}
}

func TestAnalyzeSpreadAndRecommendation(t *testing.T) {
	m := NewModel(nil)
	s := NewState(Vector{90, 80, 70, 5, 60, 50}, t0)
	a := m.Analyze(s)

	if a.Strengths[0].Dimension != Belief || a.Strengths[1].Dimension != Trust {
		t.Fatalf("strengths = %+v", a.Strengths)
	}
	if a.Weaknesses[1].Dimension != Social {
		t.Fatalf("weakest should be social, got %+v", a.Weaknesses)
	}
	if a.Coherence != "low" {
		t.Fatalf("coherence = %s, want low (std %f)", a.Coherence, a.StdDev)
	}
	if a.Recommendation.Dimension != Social || a.Recommendation.Persona != Missionary {
		t.Fatalf("recommendation = %+v", a.Recommendation)
	}
	if a.Recommendation.Effectiveness != 1.5 {
		t.Fatalf("effectiveness = %f", a.Recommendation.Effectiveness)
	}
}

func TestWeakestPicksFirstOnTie(t *testing.T) {
	v := Vector{20, 10, 10, 30, 40, 10}
	if w := v.Weakest(); w != Trust {
		t.Fatalf("weakest = %s, want trust", w)
	}
}
