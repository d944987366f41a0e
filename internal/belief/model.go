package belief

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrUnknownEvent is returned when an event is absent from the impact table.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrUnknownPersona is returned when a persona is absent from the effectiveness table.
	ErrUnknownPersona = errors.New("unknown persona")
)

// #region model
// Model applies the belief-update mathematics over a fixed set of tables.
// It holds no mutable state and is safe for concurrent use.
type Model struct {
	t   *Tables
	now func() time.Time
}

// NewModel creates a model over the given tables. A nil tables pointer uses Default().
func NewModel(t *Tables) *Model {
	if t == nil {
		t = Default()
	}
	return &Model{t: t, now: time.Now}
}

// Tables returns the shared tables backing the model.
func (m *Model) Tables() *Tables {
	return m.t
}

// Composite is the weighted score of the state's vector.
func (m *Model) Composite(s State) float64 {
	return m.t.Composite(s.Vector)
}

// Stage is the funnel bucket of the state.
func (m *Model) Stage(s State) Stage {
	return m.t.StageFor(m.t.Composite(s.Vector), s.ReferralMade)
}

// Snapshot captures the state's vector, composite and stage.
func (m *Model) Snapshot(s State) Snapshot {
	c := m.t.Composite(s.Vector)
	return Snapshot{
		Vector:       s.Vector,
		Composite:    c,
		Stage:        m.t.StageFor(c, s.ReferralMade),
		ReferralMade: s.ReferralMade,
	}
}
// #endregion model

// #region update
// Update computes the state that follows applying event by persona to s.
// The input state is not modified. Fails only on a table miss.
func (m *Model) Update(s State, event Event, persona Persona, opts UpdateOptions) (Result, error) {
	impact, ok := m.t.Impacts[event]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	eff, ok := m.t.Effectiveness[persona]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownPersona, persona)
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}

	prev := m.Snapshot(s)
	sensitivity := m.t.StageSensitivity[prev.Stage]
	recency := m.Recency(s, persona, ts)

	next := s.Clone()
	var deltas Vector
	for _, d := range Dimensions {
		base := impact[d]
		delta := base * eff[d] * Momentum(s.Vector[d], base < 0) * recency * sensitivity
		deltas[d] = delta
		next.Vector[d] = clamp(next.Vector[d]+delta, 0, 100)
	}

	var coupling Vector
	if !opts.DisableCoupling {
		coupling = m.Coupling(deltas)
		for _, d := range Dimensions {
			next.Vector[d] = clamp(next.Vector[d]+coupling[d], 0, 100)
		}
	}

	if !opts.DisableHistory {
		next.History = append(next.History, HistoryEntry{
			Event:     event,
			Persona:   persona,
			Timestamp: ts,
			Deltas:    deltas,
		})
		next.LastInteraction = ts
	}

	if event == m.t.ReferralEvent {
		next.ReferralMade = true
	}

	return Result{
		Previous: prev,
		State:    next,
		Deltas:   deltas,
		Coupling: coupling,
		Factors: Factors{
			Stage:            prev.Stage,
			StageSensitivity: sensitivity,
			Recency:          recency,
		},
	}, nil
}

// UpdateBatch folds steps over s in order. On the first failing step it returns
// the results gathered so far along with the error.
func (m *Model) UpdateBatch(s State, steps []Step) (State, []Result, error) {
	cur := s
	results := make([]Result, 0, len(steps))
	for i, st := range steps {
		r, err := m.Update(cur, st.Event, st.Persona, st.Options)
		if err != nil {
			return cur, results, fmt.Errorf("step %d: %w", i, err)
		}
		cur = r.State
		results = append(results, r)
	}
	return cur, results, nil
}

// Momentum scales a delta by how entrenched the current value is.
func Momentum(value float64, negative bool) float64 {
	if negative {
		return 0.5 + 0.5*(value/100)
	}
	if value <= 30 {
		return 1.0
	}
	return 1.0 - 0.3*((value-30)/70)
}

// Recency is the diminishing-returns factor for persona, counting its log
// entries inside the trailing window ending at now.
func (m *Model) Recency(s State, persona Persona, now time.Time) float64 {
	n := 0
	for _, h := range s.History {
		if h.Persona != persona {
			continue
		}
		if now.Sub(h.Timestamp) < m.t.RecencyWindow {
			n++
		}
	}
	return 1 / (1 + m.t.RecencyPenalty*float64(n))
}

// Coupling spreads each significant delta into the other dimensions. It is a
// single pass over the direct deltas.
func (m *Model) Coupling(deltas Vector) Vector {
	var out Vector
	for _, src := range Dimensions {
		delta := deltas[src]
		if math.Abs(delta) < m.t.CouplingMinDelta {
			continue
		}
		row := m.t.Coherence[src]
		for _, dst := range Dimensions {
			if dst == src {
				continue
			}
			out[dst] += delta * row[dst] * m.t.CouplingStrength
		}
	}
	return out
}
// #endregion update

// #region decay
// ApplyDecay pulls each dimension toward zero by (1-rate)^days. Negative
// days are treated as zero.
func (m *Model) ApplyDecay(s State, days float64) State {
	next := s.Clone()
	if days <= 0 {
		return next
	}
	for _, d := range Dimensions {
		next.Vector[d] = clamp(next.Vector[d]*math.Pow(1-m.t.DecayRates[d], days), 0, 100)
	}
	return next
}
// #endregion decay

// #region probability
// Probability maps a composite score through the clamped sigmoid.
func Probability(composite float64, p ProbabilityParams) float64 {
	raw := 1 / (1 + math.Exp(-p.Steepness*(composite-p.Threshold)))
	return clamp(raw, p.Floor, p.Ceiling)
}

// ConversionProbability is Probability applied to the state's composite.
func (m *Model) ConversionProbability(s State) float64 {
	return Probability(m.Composite(s), m.t.Probability)
}

// Trajectory estimates how far a state is from the conversion target.
type Trajectory struct {
	CurrentScore     float64 `json:"currentScore"`
	TargetScore      float64 `json:"targetScore"`
	Remaining        float64 `json:"remaining"`
	DaysToConversion int     `json:"daysToConversion"`
	Probability      float64 `json:"probability"`
}

// Trajectory predicts days to reach the conversion target at avgDailyDelta
// points per day. A non-positive rate yields -1 days when the target is not
// yet reached.
func (m *Model) Trajectory(s State, avgDailyDelta float64) Trajectory {
	c := m.Composite(s)
	tr := Trajectory{
		CurrentScore: c,
		TargetScore:  m.t.ConversionTarget,
		Probability:  m.ConversionProbability(s),
	}
	if c >= m.t.ConversionTarget {
		return tr
	}
	tr.Remaining = m.t.ConversionTarget - c
	if avgDailyDelta <= 0 {
		tr.DaysToConversion = -1
		return tr
	}
	tr.DaysToConversion = int(math.Ceil(tr.Remaining / avgDailyDelta))
	return tr
}
// #endregion probability
