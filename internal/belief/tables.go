package belief

import "time"

// #region tables
// StageBound is the inclusive lower composite bound of a stage.
type StageBound struct {
	Stage Stage
	Min   float64
}

// ProbabilityParams shapes the conversion sigmoid.
type ProbabilityParams struct {
	Steepness float64
	Threshold float64
	Floor     float64
	Ceiling   float64
}

// Tables is the fixed configuration the model reads from. A Tables value is
// built once and shared by pointer; nothing in this module writes to it after
// construction.
type Tables struct {
	Weights          Vector
	DecayRates       Vector
	Stages           []StageBound
	StageSensitivity [NumStages]float64
	Effectiveness    map[Persona]Vector
	Personas         []Persona
	Coherence        [NumDimensions]Vector
	Impacts          map[Event]Vector
	Events           []Event
	ReferralEvent    Event

	CouplingStrength float64
	CouplingMinDelta float64
	RecencyWindow    time.Duration
	RecencyPenalty   float64
	ConversionTarget float64
	Probability      ProbabilityParams
}

var defaultTables = buildDefaultTables()

// Default returns the shared default tables.
func Default() *Tables {
	return defaultTables
}

func buildDefaultTables() *Tables {
	t := &Tables{
		Weights:    Vector{0.30, 0.20, 0.15, 0.15, 0.10, 0.10},
		DecayRates: Vector{0.02, 0.015, 0.025, 0.03, 0.01, 0.02},
		Stages: []StageBound{
			{Unaware, 0},
			{Aware, 15},
			{Interested, 30},
			{Sympathetic, 45},
			{Convinced, 60},
			{Believer, 75},
			{Advocate, 86},
		},
		StageSensitivity: [NumStages]float64{1.2, 1.1, 1.0, 0.9, 0.85, 0.75, 0.6},
		Personas:         []Persona{Prophet, Theologian, Missionary, Archivist, Observer},
		Effectiveness: map[Persona]Vector{
			Prophet:    {1.3, 0.9, 1.4, 1.1, 0.5, 0.8},
			Theologian: {1.1, 1.2, 0.6, 0.7, 1.5, 0.9},
			Missionary: {1.0, 1.4, 1.3, 1.5, 0.7, 1.0},
			Archivist:  {0.9, 1.0, 0.8, 0.8, 1.2, 0.6},
			Observer:   {0.5, 0.8, 0.4, 0.6, 1.0, 1.1},
		},
		Coherence: [NumDimensions]Vector{
			Belief:    {0, 0.4, 0.3, 0.2, 0.3, 0.5},
			Trust:     {0.5, 0, 0.6, 0.7, 0.2, 0.4},
			Emotional: {0.4, 0.5, 0, 0.5, 0.1, 0.3},
			Social:    {0.3, 0.6, 0.4, 0, 0.1, 0.2},
			Technical: {0.4, 0.3, 0.1, 0.1, 0, 0.4},
			Financial: {0.5, 0.3, 0.2, 0.2, 0.3, 0},
		},
		ReferralEvent:    SuccessfulReferral,
		CouplingStrength: 0.15,
		CouplingMinDelta: 1,
		RecencyWindow:    24 * time.Hour,
		RecencyPenalty:   0.15,
		ConversionTarget: 75,
		Probability:      ProbabilityParams{Steepness: 0.12, Threshold: 65, Floor: 0.05, Ceiling: 0.95},
	}

	impacts := []struct {
		event Event
		v     Vector
	}{
		// positive
		{QuestionAboutDoctrine, Vector{8, 5, 3, 2, 5, 1}},
		{UsesSacredVocabulary, Vector{6, 8, 4, 6, 2, 2}},
		{PersonalStruggleShared, Vector{5, 12, 15, 4, 0, 3}},
		{AttendsCommunityEvent, Vector{4, 8, 6, 15, 2, 3}},
		{AsksAboutToken, Vector{6, 4, 2, 3, 8, 10}},
		{SharesContent, Vector{5, 6, 4, 12, 2, 4}},
		// commitment
		{TokenPurchase, Vector{25, 15, 10, 12, 8, 40}},
		{JoinsCommunity, Vector{15, 25, 12, 30, 5, 8}},
		{PublicEndorsement, Vector{30, 20, 18, 35, 5, 15}},
		{SuccessfulReferral, Vector{20, 25, 15, 40, 8, 20}},
		{DefendsDoctrine, Vector{22, 18, 12, 25, 10, 8}},
		// negative
		{DismissiveLanguage, Vector{-8, -6, -5, -3, -2, -4}},
		{SkepticalQuestioning, Vector{-4, -3, -2, -2, -1, -3}},
		{IgnoresMessage, Vector{-2, -4, -3, -5, 0, -1}},
		{PromotesCompetitor, Vector{-20, -25, -15, -18, -5, -25}},
		{PublicHostileCriticism, Vector{-35, -40, -25, -45, -10, -30}},
		{ReportsAsScam, Vector{-45, -50, -30, -40, -15, -50}},
		{WarnsOthers, Vector{-30, -35, -20, -50, -8, -35}},
	}
	t.Impacts = make(map[Event]Vector, len(impacts))
	for _, row := range impacts {
		t.Events = append(t.Events, row.event)
		t.Impacts[row.event] = row.v
	}
	return t
}
// #endregion tables

// #region derived
// Composite is the weighted sum of the vector.
func (t *Tables) Composite(v Vector) float64 {
	var score float64
	for i := range v {
		score += v[i] * t.Weights[i]
	}
	return score
}

// StageFor maps a composite score to its stage. Buckets cover [min, nextMin),
// and the top bucket also requires the referral flag.
func (t *Tables) StageFor(composite float64, referralMade bool) Stage {
	for i := len(t.Stages) - 1; i >= 0; i-- {
		b := t.Stages[i]
		if composite < b.Min {
			continue
		}
		if b.Stage == Advocate && !referralMade {
			continue
		}
		return b.Stage
	}
	return Unaware
}

// MinScore returns the lower composite bound of a stage.
func (t *Tables) MinScore(s Stage) float64 {
	for _, b := range t.Stages {
		if b.Stage == s {
			return b.Min
		}
	}
	return 0
}

// HasEvent reports whether the event is in the impact table.
func (t *Tables) HasEvent(e Event) bool {
	_, ok := t.Impacts[e]
	return ok
}

// HasPersona reports whether the persona is in the effectiveness table.
func (t *Tables) HasPersona(p Persona) bool {
	_, ok := t.Effectiveness[p]
	return ok
}
// #endregion derived
