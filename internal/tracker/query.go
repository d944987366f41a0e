package tracker

import (
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/criteria"
)

// #region prospects
// Prospect is a ranked, not yet converted target.
type Prospect struct {
	TargetID    string       `json:"id"`
	Probability float64      `json:"probability"`
	Composite   float64      `json:"composite"`
	Stage       belief.Stage `json:"stage"`
}

// ByStage returns copies of every target currently in stage, ordered by id.
func (t *Tracker) ByStage(stage belief.Stage) []*Target {
	var out []*Target
	for _, tgt := range t.Targets() {
		if t.model.Stage(tgt.State) == stage {
			out = append(out, tgt)
		}
	}
	return out
}

// HotProspects ranks targets that are not converted by conversion
// probability, then composite, then id, and returns at most limit of them.
func (t *Tracker) HotProspects(limit int) []Prospect {
	var out []Prospect
	for _, tgt := range t.Targets() {
		if tgt.Status == StatusConverted {
			continue
		}
		snap := t.model.Snapshot(tgt.State)
		out = append(out, Prospect{
			TargetID:    tgt.ID,
			Probability: t.model.ConversionProbability(tgt.State),
			Composite:   snap.Composite,
			Stage:       snap.Stage,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}
		return out[i].TargetID < out[j].TargetID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// #endregion prospects

// #region report
// PersonaPerformance is PersonaStats plus a conversion rate in percent.
type PersonaPerformance struct {
	PersonaStats
	ConversionRate float64 `json:"conversionRate"`
}

// Summary holds headline counts of a Report.
type Summary struct {
	TotalTargets     int     `json:"totalTargets"`
	Converted        int     `json:"converted"`
	PartialConverted int     `json:"partialConverted"`
	ConversionRate   float64 `json:"conversionRate"`
	AverageComposite float64 `json:"averageComposite"`
}

// Report is a point-in-time view of the whole registry.
type Report struct {
	Summary            Summary                               `json:"summary"`
	StageDistribution  map[belief.Stage]int                  `json:"stageDistribution"`
	PersonaPerformance map[belief.Persona]PersonaPerformance `json:"agentPerformance"`
	HotProspects       []Prospect                            `json:"hotProspects"`
	RecentConversions  []ConversionRecord                    `json:"recentConversions"`
	GeneratedAt        time.Time                             `json:"generatedAt"`
}

// Report builds the stage distribution, persona performance, average
// composite, top five prospects and last five conversions.
func (t *Tracker) Report() Report {
	targets := t.Targets()
	rep := Report{
		StageDistribution:  make(map[belief.Stage]int, belief.NumStages),
		PersonaPerformance: make(map[belief.Persona]PersonaPerformance),
		GeneratedAt:        t.now(),
	}
	for _, s := range belief.Stages {
		rep.StageDistribution[s] = 0
	}

	var total float64
	for _, tgt := range targets {
		snap := t.model.Snapshot(tgt.State)
		rep.StageDistribution[snap.Stage]++
		total += snap.Composite
	}

	conversions := t.Conversions()
	rep.Summary = Summary{
		TotalTargets:     len(targets),
		Converted:        len(conversions),
		PartialConverted: len(t.Partials()),
	}
	if len(targets) > 0 {
		rep.Summary.ConversionRate = float64(len(conversions)) / float64(len(targets)) * 100
		rep.Summary.AverageComposite = total / float64(len(targets))
	}

	for p, st := range t.PersonaStats() {
		perf := PersonaPerformance{PersonaStats: st}
		if st.Interactions > 0 {
			perf.ConversionRate = float64(st.ConversionsInfluenced) / float64(st.Interactions) * 100
		}
		rep.PersonaPerformance[p] = perf
	}

	rep.HotProspects = t.HotProspects(5)
	if n := len(conversions); n > 5 {
		conversions = conversions[n-5:]
	}
	rep.RecentConversions = conversions
	return rep
}

// #endregion report

// #region recommendations
// CriteriaStatus reports every full and partial criterion for a target.
type CriteriaStatus struct {
	Full       criteria.Evaluation `json:"fullConversion"`
	Partial    criteria.Evaluation `json:"partialConversion"`
	FullMet    int                 `json:"fullMet"`
	PartialMet int                 `json:"partialMet"`
}

// CriteriaStatus evaluates both criteria sets against the target without
// changing it.
func (t *Tracker) CriteriaStatus(id string) (CriteriaStatus, error) {
	tgt := t.lookup(id)
	if tgt == nil {
		return CriteriaStatus{}, fmt.Errorf("criteria status %s: %w", id, ErrTargetNotFound)
	}
	return t.criteriaStatus(tgt), nil
}

func (t *Tracker) criteriaStatus(tgt *Target) CriteriaStatus {
	sub := t.subject(tgt, t.now())
	full := t.full.Evaluate(sub)
	partial := t.partial.Evaluate(sub)
	return CriteriaStatus{
		Full:       full,
		Partial:    partial,
		FullMet:    len(full.Met),
		PartialMet: len(partial.Met),
	}
}

// Recommendation is the per-target advice built from the analysis and stage.
type Recommendation struct {
	TargetID        string                  `json:"targetId"`
	Stage           belief.Stage            `json:"currentStage"`
	Composite       float64                 `json:"compositeScore"`
	Probability     float64                 `json:"conversionProbability"`
	PrimaryPersona  belief.Persona          `json:"primaryAgent"`
	TargetDimension belief.Dimension        `json:"targetDimension"`
	Strengths       []belief.DimensionValue `json:"strengths"`
	Weaknesses      []belief.DimensionValue `json:"weaknesses"`
	StrategyNotes   []string                `json:"strategyNotes"`
	Criteria        CriteriaStatus          `json:"criteriaStatus"`
}

var stageNotes = map[belief.Stage][]string{
	belief.Unaware: {
		"Initial contact phase, focus on awareness",
		"Use Missionary for rapport building",
		"Introduce basic concepts gradually",
	},
	belief.Aware: {
		"Build understanding of core doctrine",
		"Deploy Theologian for technical depth",
		"Address initial questions thoroughly",
	},
	belief.Interested: {
		"Deepen engagement with community aspects",
		"Share transformation stories",
		"Introduce Prophet for emotional resonance",
	},
	belief.Sympathetic: {
		"Reinforce emotional connection",
		"Use Archivist for scriptural support",
		"Encourage community participation",
	},
	belief.Convinced: {
		"Invite action (investment or joining)",
		"Full persona rotation is appropriate",
		"Keep momentum without pressure",
	},
	belief.Believer: {
		"Solidify commitment",
		"Encourage referral activity",
		"Integrate into community leadership",
	},
	belief.Advocate: {
		"Maintain engagement",
		"Collect testimonials",
		"Support their outreach efforts",
	},
}

// StageNotes returns the strategy notes for a stage.
func StageNotes(s belief.Stage) []string {
	return append([]string(nil), stageNotes[s]...)
}

// Recommendations combines belief analysis, stage notes and criteria status.
func (t *Tracker) Recommendations(id string) (Recommendation, error) {
	tgt := t.lookup(id)
	if tgt == nil {
		return Recommendation{}, fmt.Errorf("recommendations %s: %w", id, ErrTargetNotFound)
	}
	a := t.model.Analyze(tgt.State)
	return Recommendation{
		TargetID:        id,
		Stage:           a.Stage,
		Composite:       a.Composite,
		Probability:     a.Probability,
		PrimaryPersona:  a.Recommendation.Persona,
		TargetDimension: a.Recommendation.Dimension,
		Strengths:       a.Strengths,
		Weaknesses:      a.Weaknesses,
		StrategyNotes:   StageNotes(a.Stage),
		Criteria:        t.criteriaStatus(tgt),
	}, nil
}

// #endregion recommendations
