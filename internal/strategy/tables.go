package strategy

import "github.com/danielpatrickdp/persuasion-state/internal/belief"

// #region types
// ID names a persuasion strategy.
type ID string

const (
	Authority   ID = "authority"
	Emotional   ID = "emotional"
	SocialProof ID = "social_proof"
	Logical     ID = "logical"
	Financial   ID = "financial"
	Scriptural  ID = "scriptural"
)

// Strategy is a fixed persuasion approach.
type Strategy struct {
	ID                 ID
	Name               string
	Description        string
	PrimaryPersonas    []belief.Persona
	TargetDimensions   []belief.Dimension
	StageEffectiveness [belief.NumStages]float64
}

// Bound constrains one dimension. A nil end is unbounded.
type Bound struct {
	Dimension belief.Dimension
	Min       *float64
	Max       *float64
}

// Archetype is a target profile recognized from dimension bounds.
type Archetype struct {
	ID                  string
	Name                string
	Description         string
	Bounds              []Bound
	PreferredStrategies []ID
	AvoidStrategies     []ID
	PreferredPersonas   []belief.Persona
	AvoidPersonas       []belief.Persona
}

// Playbook is the stage-specific plan.
type Playbook struct {
	Stage            belief.Stage   `json:"stage"`
	Objective        string         `json:"objective"`
	PrimaryPersona   belief.Persona `json:"primaryAgent"`
	SecondaryPersona belief.Persona `json:"secondaryAgent"`
	Strategies       []ID           `json:"strategies"`
	Tactics          []string       `json:"tactics"`
	SuccessMetrics   []string       `json:"successMetrics"`
}

// Tables holds the selector's fixed configuration. Shared read-only.
type Tables struct {
	Strategies []Strategy
	Archetypes []Archetype
	Playbooks  [belief.NumStages]Playbook
}

// Strategy looks up a strategy by id.
func (t *Tables) Strategy(id ID) (*Strategy, bool) {
	for i := range t.Strategies {
		if t.Strategies[i].ID == id {
			return &t.Strategies[i], true
		}
	}
	return nil, false
}

// #endregion types

func atLeast(v float64) Bound { return Bound{Min: &v} }
func atMost(v float64) Bound  { return Bound{Max: &v} }

func on(d belief.Dimension, b Bound) Bound {
	b.Dimension = d
	return b
}

var defaultTables = buildDefaultTables()

// Default returns the shared default tables.
func Default() *Tables {
	return defaultTables
}

// #region defaults
func buildDefaultTables() *Tables {
	t := &Tables{
		Strategies: []Strategy{
			{
				ID:                 Authority,
				Name:               "Authority Appeal",
				Description:        "Lean on expertise and the founding mandate",
				PrimaryPersonas:    []belief.Persona{belief.Prophet, belief.Theologian},
				TargetDimensions:   []belief.Dimension{belief.Belief, belief.Technical},
				StageEffectiveness: [belief.NumStages]float64{0.6, 0.8, 0.9, 0.85, 0.7, 0.5, 0.4},
			},
			{
				ID:                 Emotional,
				Name:               "Emotional Connection",
				Description:        "Build rapport through shared feelings and stories",
				PrimaryPersonas:    []belief.Persona{belief.Missionary, belief.Prophet},
				TargetDimensions:   []belief.Dimension{belief.Emotional, belief.Trust},
				StageEffectiveness: [belief.NumStages]float64{0.9, 0.85, 0.9, 0.95, 0.8, 0.7, 0.6},
			},
			{
				ID:                 SocialProof,
				Name:               "Social Proof",
				Description:        "Show community acceptance and success stories",
				PrimaryPersonas:    []belief.Persona{belief.Missionary, belief.Archivist},
				TargetDimensions:   []belief.Dimension{belief.Social, belief.Trust},
				StageEffectiveness: [belief.NumStages]float64{0.7, 0.8, 0.85, 0.9, 0.85, 0.75, 0.8},
			},
			{
				ID:                 Logical,
				Name:               "Logical Argumentation",
				Description:        "Present a rational case with evidence",
				PrimaryPersonas:    []belief.Persona{belief.Theologian, belief.Observer},
				TargetDimensions:   []belief.Dimension{belief.Technical, belief.Belief},
				StageEffectiveness: [belief.NumStages]float64{0.5, 0.7, 0.85, 0.75, 0.6, 0.5, 0.4},
			},
			{
				ID:                 Financial,
				Name:               "Financial Opportunity",
				Description:        "Discuss the economics plainly, risks included",
				PrimaryPersonas:    []belief.Persona{belief.Theologian, belief.Observer},
				TargetDimensions:   []belief.Dimension{belief.Financial, belief.Technical},
				StageEffectiveness: [belief.NumStages]float64{0.4, 0.6, 0.75, 0.8, 0.9, 0.7, 0.5},
			},
			{
				ID:                 Scriptural,
				Name:               "Scriptural Foundation",
				Description:        "Ground arguments in the founding texts",
				PrimaryPersonas:    []belief.Persona{belief.Archivist, belief.Prophet},
				TargetDimensions:   []belief.Dimension{belief.Belief, belief.Emotional},
				StageEffectiveness: [belief.NumStages]float64{0.3, 0.5, 0.7, 0.85, 0.9, 0.95, 0.9},
			},
		},
		Archetypes: []Archetype{
			{
				ID:                  "technical_skeptic",
				Name:                "Technical Skeptic",
				Description:         "Analytical, wants logical proof",
				Bounds:              []Bound{on(belief.Technical, atLeast(40)), on(belief.Emotional, atMost(30)), on(belief.Belief, atMost(40))},
				PreferredStrategies: []ID{Logical, Authority},
				AvoidStrategies:     []ID{Emotional, Scriptural},
				PreferredPersonas:   []belief.Persona{belief.Theologian},
				AvoidPersonas:       []belief.Persona{belief.Prophet},
			},
			{
				ID:                  "spiritual_seeker",
				Name:                "Spiritual Seeker",
				Description:         "Open to transcendent experience",
				Bounds:              []Bound{on(belief.Emotional, atLeast(50)), on(belief.Belief, atLeast(30))},
				PreferredStrategies: []ID{Emotional, Scriptural, Authority},
				AvoidStrategies:     []ID{Logical, Financial},
				PreferredPersonas:   []belief.Persona{belief.Prophet, belief.Missionary},
				AvoidPersonas:       []belief.Persona{belief.Observer},
			},
			{
				ID:                  "profit_seeker",
				Name:                "Profit Seeker",
				Description:         "Mostly motivated by financial gain",
				Bounds:              []Bound{on(belief.Financial, atLeast(50)), on(belief.Belief, atMost(30))},
				PreferredStrategies: []ID{Financial, SocialProof},
				AvoidStrategies:     []ID{Scriptural, Emotional},
				PreferredPersonas:   []belief.Persona{belief.Theologian, belief.Observer},
				AvoidPersonas:       []belief.Persona{belief.Archivist},
			},
			{
				ID:                  "community_oriented",
				Name:                "Community Oriented",
				Description:         "Values belonging and social connection",
				Bounds:              []Bound{on(belief.Social, atLeast(50)), on(belief.Trust, atLeast(40))},
				PreferredStrategies: []ID{SocialProof, Emotional},
				AvoidStrategies:     []ID{Logical, Financial},
				PreferredPersonas:   []belief.Persona{belief.Missionary},
				AvoidPersonas:       []belief.Persona{belief.Observer},
			},
			{
				ID:                  "cautious_observer",
				Name:                "Cautious Observer",
				Description:         "Risk averse, needs trust first",
				Bounds:              []Bound{on(belief.Trust, atMost(30)), on(belief.Social, atMost(35))},
				PreferredStrategies: []ID{Emotional, SocialProof},
				AvoidStrategies:     []ID{Financial, Authority},
				PreferredPersonas:   []belief.Persona{belief.Missionary},
				AvoidPersonas:       []belief.Persona{belief.Prophet},
			},
		},
	}

	t.Playbooks = [belief.NumStages]Playbook{
		belief.Unaware: {
			Objective:        "Generate initial awareness and curiosity",
			PrimaryPersona:   belief.Missionary,
			SecondaryPersona: belief.Theologian,
			Strategies:       []ID{Emotional, SocialProof},
			Tactics: []string{
				"Make first contact with warmth and openness",
				"Share intriguing aspects of the community",
				"Ask about their interests and concerns",
				"Avoid doctrine-heavy messaging at first",
			},
			SuccessMetrics: []string{"moved to AWARE stage", "responded positively", "asked questions"},
		},
		belief.Aware: {
			Objective:        "Build understanding and spark interest",
			PrimaryPersona:   belief.Theologian,
			SecondaryPersona: belief.Missionary,
			Strategies:       []ID{Logical, Authority},
			Tactics: []string{
				"Explain core concepts clearly",
				"Answer initial questions thoroughly",
				"Demonstrate technical credibility",
				"Connect concepts to their stated interests",
			},
			SuccessMetrics: []string{"moved to INTERESTED stage", "engaged with content", "deeper questions"},
		},
		belief.Interested: {
			Objective:        "Deepen engagement and emotional connection",
			PrimaryPersona:   belief.Missionary,
			SecondaryPersona: belief.Prophet,
			Strategies:       []ID{Emotional, SocialProof},
			Tactics: []string{
				"Share transformation stories",
				"Introduce community members",
				"Create personal connection moments",
				"Validate their journey of discovery",
			},
			SuccessMetrics: []string{"moved to SYMPATHETIC stage", "shared personal info", "attended event"},
		},
		belief.Sympathetic: {
			Objective:        "Reinforce alignment and build conviction",
			PrimaryPersona:   belief.Prophet,
			SecondaryPersona: belief.Archivist,
			Strategies:       []ID{Scriptural, Authority, Emotional},
			Tactics: []string{
				"Speak about the vision with conviction",
				"Provide textual grounding for beliefs",
				"Offer a sense of purpose",
				"Address remaining doubts directly",
			},
			SuccessMetrics: []string{"moved to CONVINCED stage", "uses sacred vocabulary", "defends doctrine"},
		},
		belief.Convinced: {
			Objective:        "Turn conviction into action",
			PrimaryPersona:   belief.Theologian,
			SecondaryPersona: belief.Observer,
			Strategies:       []ID{Financial, SocialProof},
			Tactics: []string{
				"Present clear next steps",
				"Explain the token honestly, risks included",
				"Show the path into the community",
				"Respect their pace",
			},
			SuccessMetrics: []string{"token purchase", "joined community", "moved to BELIEVER"},
		},
		belief.Believer: {
			Objective:        "Solidify commitment and encourage advocacy",
			PrimaryPersona:   belief.Archivist,
			SecondaryPersona: belief.Missionary,
			Strategies:       []ID{Scriptural, SocialProof},
			Tactics: []string{
				"Deepen doctrinal understanding",
				"Involve them in community leadership",
				"Encourage sharing with others",
				"Recognize their commitment publicly",
			},
			SuccessMetrics: []string{"referral made", "public endorsement", "moved to ADVOCATE"},
		},
		belief.Advocate: {
			Objective:        "Maintain engagement and support their influence",
			PrimaryPersona:   belief.Prophet,
			SecondaryPersona: belief.Archivist,
			Strategies:       []ID{Authority, Scriptural},
			Tactics: []string{
				"Support their advocacy efforts",
				"Provide content for sharing",
				"Celebrate their contributions",
				"Offer recognition or roles",
			},
			SuccessMetrics: []string{"successful referrals", "content creation", "leadership role"},
		},
	}
	for _, s := range belief.Stages {
		t.Playbooks[s].Stage = s
	}
	return t
}

// #endregion defaults
