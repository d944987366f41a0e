package belief

import (
	"math"
	"sort"
)

// DimensionValue pairs a dimension with its value.
type DimensionValue struct {
	Dimension Dimension `json:"dimension"`
	Value     float64   `json:"value"`
}

// PersonaRecommendation names the persona best suited to lift the weakest dimension.
type PersonaRecommendation struct {
	Persona       Persona   `json:"recommendedAgent"`
	Dimension     Dimension `json:"targetDimension"`
	CurrentValue  float64   `json:"currentValue"`
	Effectiveness float64   `json:"effectiveness"`
}

// Analysis summarizes the shape of a belief vector.
type Analysis struct {
	Composite      float64               `json:"composite"`
	Stage          Stage                 `json:"stage"`
	Average        float64               `json:"average"`
	StdDev         float64               `json:"standardDeviation"`
	Coherence      string                `json:"coherence"`
	Strengths      []DimensionValue      `json:"strengths"`
	Weaknesses     []DimensionValue      `json:"weaknesses"`
	Probability    float64               `json:"conversionProbability"`
	Recommendation PersonaRecommendation `json:"recommendation"`
}

// Ranked returns the dimensions sorted by value, highest first. Equal values
// keep canonical dimension order.
func (v Vector) Ranked() []DimensionValue {
	out := make([]DimensionValue, NumDimensions)
	for i, d := range Dimensions {
		out[i] = DimensionValue{Dimension: d, Value: v[d]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// Weakest returns the lowest dimension. The first in canonical order wins a tie.
func (v Vector) Weakest() Dimension {
	weakest := Belief
	for _, d := range Dimensions {
		if v[d] < v[weakest] {
			weakest = d
		}
	}
	return weakest
}

// RecommendPersona picks the persona with the highest effectiveness on the
// weakest dimension of s.
func (m *Model) RecommendPersona(s State) PersonaRecommendation {
	weak := s.Vector.Weakest()
	rec := PersonaRecommendation{Dimension: weak, CurrentValue: s.Vector[weak]}
	for _, p := range m.t.Personas {
		if e := m.t.Effectiveness[p][weak]; e > rec.Effectiveness {
			rec.Effectiveness = e
			rec.Persona = p
		}
	}
	return rec
}

// Analyze reports statistics, the two strongest and two weakest dimensions,
// conversion probability and a persona recommendation.
func (m *Model) Analyze(s State) Analysis {
	snap := m.Snapshot(s)

	var sum float64
	for _, v := range s.Vector {
		sum += v
	}
	avg := sum / NumDimensions
	var variance float64
	for _, v := range s.Vector {
		variance += (v - avg) * (v - avg)
	}
	std := math.Sqrt(variance / NumDimensions)

	coherence := "low"
	switch {
	case std < 15:
		coherence = "high"
	case std < 25:
		coherence = "medium"
	}

	ranked := s.Vector.Ranked()
	return Analysis{
		Composite:      snap.Composite,
		Stage:          snap.Stage,
		Average:        avg,
		StdDev:         std,
		Coherence:      coherence,
		Strengths:      append([]DimensionValue(nil), ranked[:2]...),
		Weaknesses:     append([]DimensionValue(nil), ranked[NumDimensions-2:]...),
		Probability:    m.ConversionProbability(s),
		Recommendation: m.RecommendPersona(s),
	}
}
