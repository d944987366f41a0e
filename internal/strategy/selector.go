package strategy

import (
	"slices"
	"sort"
	"sync"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// DefaultMemory is how many recent personas are kept per target.
const DefaultMemory = 10

// Selector chooses strategies and personas for a target. The tables are
// read-only; the only mutable state is the per-target persona memory.
type Selector struct {
	model  *belief.Model
	t      *Tables
	window int

	mu     sync.Mutex
	recent map[string][]belief.Persona
}

// NewSelector returns a selector over model. A nil tables argument selects
// Default().
func NewSelector(model *belief.Model, t *Tables) *Selector {
	if t == nil {
		t = Default()
	}
	return &Selector{
		model:  model,
		t:      t,
		window: DefaultMemory,
		recent: make(map[string][]belief.Persona),
	}
}

// Tables returns the selector's tables.
func (s *Selector) Tables() *Tables { return s.t }

// #region archetype
// ArchetypeMatch is the identified archetype and the share of bounds it
// satisfied.
type ArchetypeMatch struct {
	Archetype *Archetype
	Score     float64
}

// IdentifyArchetype scores every archetype by satisfied bounds over twice the
// number of dimensions. The highest positive score wins and earlier
// archetypes win ties. Nil means no archetype matched at all.
func (s *Selector) IdentifyArchetype(v belief.Vector) *ArchetypeMatch {
	var best *ArchetypeMatch
	for i := range s.t.Archetypes {
		a := &s.t.Archetypes[i]
		satisfied := 0
		for _, b := range a.Bounds {
			val := v[b.Dimension]
			if b.Min != nil && val >= *b.Min {
				satisfied++
			}
			if b.Max != nil && val <= *b.Max {
				satisfied++
			}
		}
		score := float64(satisfied) / float64(len(a.Bounds)*2)
		if score <= 0 {
			continue
		}
		if best == nil || score > best.Score {
			best = &ArchetypeMatch{Archetype: a, Score: score}
		}
	}
	return best
}

// #endregion archetype

// #region strategy
// StrategyOptions narrows SelectStrategy.
type StrategyOptions struct {
	Exclude   []ID
	Preferred ID
}

// StrategyScore is one scored strategy.
type StrategyScore struct {
	Strategy        *Strategy
	Score           float64
	StageScore      float64
	ArchetypeMatch  bool
	TargetsWeakness bool
	InPlaybook      bool
}

// StrategyRanking is the outcome of SelectStrategy.
type StrategyRanking struct {
	Ranked    []StrategyScore
	Stage     belief.Stage
	Archetype *ArchetypeMatch
	Playbook  *Playbook
}

// Recommended returns the top strategy. The boolean is false when every
// strategy was excluded.
func (r StrategyRanking) Recommended() (StrategyScore, bool) {
	if len(r.Ranked) == 0 {
		return StrategyScore{}, false
	}
	return r.Ranked[0], true
}

// Alternatives returns up to two runners-up.
func (r StrategyRanking) Alternatives() []StrategyScore {
	if len(r.Ranked) <= 1 {
		return nil
	}
	end := min(len(r.Ranked), 3)
	return r.Ranked[1:end]
}

// SelectStrategy ranks strategies for the current state:
//
//	0.4 * stage effectiveness
//	+0.3 archetype prefers it, or -0.15 archetype avoids it
//	+0.2 it targets one of the two weakest dimensions
//	+0.1 it is in the stage playbook
//	+0.15 it is the caller's preferred strategy
func (s *Selector) SelectStrategy(st belief.State, opts StrategyOptions) StrategyRanking {
	stage := s.model.Stage(st)
	arch := s.IdentifyArchetype(st.Vector)
	pb := &s.t.Playbooks[stage]
	weak := weakest(st.Vector, 2)

	out := StrategyRanking{Stage: stage, Archetype: arch, Playbook: pb}
	for i := range s.t.Strategies {
		strat := &s.t.Strategies[i]
		if slices.Contains(opts.Exclude, strat.ID) {
			continue
		}
		sc := StrategyScore{Strategy: strat, StageScore: strat.StageEffectiveness[stage]}
		sc.Score = 0.4 * sc.StageScore

		if arch != nil {
			if slices.Contains(arch.Archetype.PreferredStrategies, strat.ID) {
				sc.ArchetypeMatch = true
				sc.Score += 0.3
			} else if slices.Contains(arch.Archetype.AvoidStrategies, strat.ID) {
				sc.Score -= 0.15
			}
		}
		for _, d := range strat.TargetDimensions {
			if slices.Contains(weak, d) {
				sc.TargetsWeakness = true
				sc.Score += 0.2
				break
			}
		}
		if slices.Contains(pb.Strategies, strat.ID) {
			sc.InPlaybook = true
			sc.Score += 0.1
		}
		if opts.Preferred != "" && opts.Preferred == strat.ID {
			sc.Score += 0.15
		}
		out.Ranked = append(out.Ranked, sc)
	}
	sort.SliceStable(out.Ranked, func(i, j int) bool { return out.Ranked[i].Score > out.Ranked[j].Score })
	return out
}

// #endregion strategy

// #region agent
// AgentOptions narrows SelectAgent. Recent personas are penalized once per
// occurrence.
type AgentOptions struct {
	Exclude  []belief.Persona
	Strategy ID
	Recent   []belief.Persona
}

// AgentScore is one scored persona.
type AgentScore struct {
	Persona            belief.Persona
	Score              float64
	Effectiveness      float64
	PlaybookPrimary    bool
	ArchetypePreferred bool
	StrategyPrimary    bool
	RecentUses         int
}

// AgentRanking is the outcome of SelectAgent.
type AgentRanking struct {
	Ranked    []AgentScore
	Dimension belief.Dimension
	Stage     belief.Stage
}

// Recommended returns the top persona.
func (r AgentRanking) Recommended() (AgentScore, bool) {
	if len(r.Ranked) == 0 {
		return AgentScore{}, false
	}
	return r.Ranked[0], true
}

// Alternatives returns up to two runners-up.
func (r AgentRanking) Alternatives() []AgentScore {
	if len(r.Ranked) <= 1 {
		return nil
	}
	end := min(len(r.Ranked), 3)
	return r.Ranked[1:end]
}

// Avoid returns the lowest scored persona.
func (r AgentRanking) Avoid() (AgentScore, bool) {
	if len(r.Ranked) == 0 {
		return AgentScore{}, false
	}
	return r.Ranked[len(r.Ranked)-1], true
}

// SelectAgent ranks personas for the current state:
//
//	0.35 * effectiveness on the weakest dimension
//	+0.25 playbook primary, or +0.15 playbook secondary
//	+0.2 archetype prefers it, or -0.1 archetype avoids it
//	+0.15 it is a primary persona of opts.Strategy
//	-0.05 per appearance in opts.Recent
func (s *Selector) SelectAgent(st belief.State, opts AgentOptions) AgentRanking {
	stage := s.model.Stage(st)
	arch := s.IdentifyArchetype(st.Vector)
	pb := &s.t.Playbooks[stage]
	weak := st.Vector.Weakest()
	eff := s.model.Tables().Effectiveness

	var strat *Strategy
	if opts.Strategy != "" {
		strat, _ = s.t.Strategy(opts.Strategy)
	}

	out := AgentRanking{Dimension: weak, Stage: stage}
	for _, p := range s.model.Tables().Personas {
		if slices.Contains(opts.Exclude, p) {
			continue
		}
		sc := AgentScore{Persona: p, Effectiveness: eff[p][weak]}
		sc.Score = 0.35 * sc.Effectiveness

		switch p {
		case pb.PrimaryPersona:
			sc.PlaybookPrimary = true
			sc.Score += 0.25
		case pb.SecondaryPersona:
			sc.Score += 0.15
		}
		if arch != nil {
			if slices.Contains(arch.Archetype.PreferredPersonas, p) {
				sc.ArchetypePreferred = true
				sc.Score += 0.2
			} else if slices.Contains(arch.Archetype.AvoidPersonas, p) {
				sc.Score -= 0.1
			}
		}
		if strat != nil && slices.Contains(strat.PrimaryPersonas, p) {
			sc.StrategyPrimary = true
			sc.Score += 0.15
		}
		for _, r := range opts.Recent {
			if r == p {
				sc.RecentUses++
			}
		}
		sc.Score -= 0.05 * float64(sc.RecentUses)
		out.Ranked = append(out.Ranked, sc)
	}
	sort.SliceStable(out.Ranked, func(i, j int) bool { return out.Ranked[i].Score > out.Ranked[j].Score })
	return out
}

// #endregion agent

// #region recommend
// Recommendation is the combined strategy and persona advice for one target.
type Recommendation struct {
	TargetID             string                  `json:"targetId"`
	Stage                belief.Stage            `json:"stage"`
	Composite            float64                 `json:"composite"`
	ArchetypeName        string                  `json:"archetype"`
	ArchetypeDescription string                  `json:"archetypeDescription"`
	Strategy             ID                      `json:"strategy"`
	StrategyName         string                  `json:"strategyName"`
	StrategyDescription  string                  `json:"strategyDescription"`
	Confidence           float64                 `json:"confidence"`
	AlternativeStrategy  []ID                    `json:"alternativeStrategies"`
	Persona              belief.Persona          `json:"agent"`
	AlternativePersonas  []belief.Persona        `json:"alternativeAgents"`
	AvoidPersona         belief.Persona          `json:"avoidAgent"`
	Playbook             Playbook                `json:"playbook"`
	Strengths            []belief.DimensionValue `json:"strengths"`
	Weaknesses           []belief.DimensionValue `json:"weaknesses"`
	Coherence            string                  `json:"coherence"`
}

// Recommend selects a strategy, then a persona for that strategy, using the
// target's remembered personas as the recency input.
func (s *Selector) Recommend(targetID string, st belief.State) Recommendation {
	strategies := s.SelectStrategy(st, StrategyOptions{})
	top, _ := strategies.Recommended()

	var agentOpts AgentOptions
	if top.Strategy != nil {
		agentOpts.Strategy = top.Strategy.ID
	}
	agentOpts.Recent = s.Recent(targetID)
	agents := s.SelectAgent(st, agentOpts)
	analysis := s.model.Analyze(st)

	rec := Recommendation{
		TargetID:             targetID,
		Stage:                strategies.Stage,
		Composite:            analysis.Composite,
		ArchetypeName:        "Unknown",
		ArchetypeDescription: "No clear archetype identified",
		Playbook:             *strategies.Playbook,
		Strengths:            analysis.Strengths,
		Weaknesses:           analysis.Weaknesses,
		Coherence:            analysis.Coherence,
	}
	if strategies.Archetype != nil {
		rec.ArchetypeName = strategies.Archetype.Archetype.Name
		rec.ArchetypeDescription = strategies.Archetype.Archetype.Description
	}
	if top.Strategy != nil {
		rec.Strategy = top.Strategy.ID
		rec.StrategyName = top.Strategy.Name
		rec.StrategyDescription = top.Strategy.Description
		rec.Confidence = top.Score
	}
	for _, alt := range strategies.Alternatives() {
		rec.AlternativeStrategy = append(rec.AlternativeStrategy, alt.Strategy.ID)
	}
	if a, ok := agents.Recommended(); ok {
		rec.Persona = a.Persona
	}
	for _, alt := range agents.Alternatives() {
		rec.AlternativePersonas = append(rec.AlternativePersonas, alt.Persona)
	}
	if a, ok := agents.Avoid(); ok {
		rec.AvoidPersona = a.Persona
	}
	return rec
}

// #endregion recommend

// #region memory
// RecordInteraction remembers that persona spoke to target.
func (s *Selector) RecordInteraction(targetID string, persona belief.Persona) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.recent[targetID], persona)
	if len(list) > s.window {
		list = append([]belief.Persona(nil), list[len(list)-s.window:]...)
	}
	s.recent[targetID] = list
}

// Recent returns the remembered personas for target, oldest first.
func (s *Selector) Recent(targetID string) []belief.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]belief.Persona(nil), s.recent[targetID]...)
}

// Forget drops the memory for target.
func (s *Selector) Forget(targetID string) {
	s.mu.Lock()
	delete(s.recent, targetID)
	s.mu.Unlock()
}

// #endregion memory

func weakest(v belief.Vector, n int) []belief.Dimension {
	ranked := v.Ranked()
	out := make([]belief.Dimension, 0, n)
	for _, dv := range ranked[len(ranked)-n:] {
		out = append(out, dv.Dimension)
	}
	return out
}
