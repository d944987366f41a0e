package belief

import (
	"encoding/json"
	"fmt"
	"time"
)

// #region dimension
// Dimension indexes one of the six belief axes.
type Dimension int

const (
	Belief Dimension = iota
	Trust
	Emotional
	Social
	Technical
	Financial
)

// NumDimensions is the fixed width of a Vector.
const NumDimensions = 6

// Dimensions lists every axis in canonical order.
var Dimensions = [NumDimensions]Dimension{Belief, Trust, Emotional, Social, Technical, Financial}

var dimensionNames = [NumDimensions]string{"belief", "trust", "emotional", "social", "technical", "financial"}

func (d Dimension) String() string {
	if d < 0 || int(d) >= NumDimensions {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return dimensionNames[d]
}

// ParseDimension resolves a dimension by its lowercase name.
func ParseDimension(name string) (Dimension, bool) {
	for i, n := range dimensionNames {
		if n == name {
			return Dimension(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the dimension by name.
func (d Dimension) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a dimension name.
func (d *Dimension) UnmarshalText(b []byte) error {
	v, ok := ParseDimension(string(b))
	if !ok {
		return fmt.Errorf("unknown dimension %q", string(b))
	}
	*d = v
	return nil
}
// #endregion dimension

// #region vector
// Vector holds one value per Dimension. Values are kept in [0, 100] by Clamp.
type Vector [NumDimensions]float64

// Uniform returns a vector with every dimension set to v.
func Uniform(v float64) Vector {
	var out Vector
	for i := range out {
		out[i] = v
	}
	return out
}

// Clamp returns a copy with every dimension bounded to [0, 100].
func (v Vector) Clamp() Vector {
	for i := range v {
		v[i] = clamp(v[i], 0, 100)
	}
	return v
}

// Map returns the vector keyed by dimension name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, NumDimensions)
	for i, n := range dimensionNames {
		out[n] = v[i]
	}
	return out
}

// VectorFromMap builds a vector from named values. Unknown names are rejected,
// missing names default to zero.
func VectorFromMap(m map[string]float64) (Vector, error) {
	var out Vector
	for name, val := range m {
		d, ok := ParseDimension(name)
		if !ok {
			return Vector{}, fmt.Errorf("unknown dimension %q", name)
		}
		out[d] = val
	}
	return out, nil
}

// MarshalJSON encodes the vector as an object keyed by dimension name.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

// UnmarshalJSON decodes an object keyed by dimension name.
func (v *Vector) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out, err := VectorFromMap(m)
	if err != nil {
		return err
	}
	*v = out
	return nil
}
// #endregion vector

// #region stage
// Stage is a funnel bucket derived from the composite score.
type Stage int

const (
	Unaware Stage = iota
	Aware
	Interested
	Sympathetic
	Convinced
	Believer
	Advocate
)

// NumStages is the number of funnel buckets.
const NumStages = 7

// Stages lists every stage from least to most advanced.
var Stages = [NumStages]Stage{Unaware, Aware, Interested, Sympathetic, Convinced, Believer, Advocate}

var stageNames = [NumStages]string{"UNAWARE", "AWARE", "INTERESTED", "SYMPATHETIC", "CONVINCED", "BELIEVER", "ADVOCATE"}

func (s Stage) String() string {
	if s < 0 || int(s) >= NumStages {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage resolves a stage by its uppercase name.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(b []byte) error {
	v, ok := ParseStage(string(b))
	if !ok {
		return fmt.Errorf("unknown stage %q", string(b))
	}
	*s = v
	return nil
}
// #endregion stage

// Event names an interaction type in the impact table.
type Event string

// Persona names one of the agent personas.
type Persona string

const (
	Prophet    Persona = "prophet"
	Theologian Persona = "theologian"
	Missionary Persona = "missionary"
	Archivist  Persona = "archivist"
	Observer   Persona = "observer"
)

const (
	QuestionAboutDoctrine  Event = "question_about_doctrine"
	UsesSacredVocabulary   Event = "uses_sacred_vocabulary"
	PersonalStruggleShared Event = "personal_struggle_shared"
	AttendsCommunityEvent  Event = "attends_community_event"
	AsksAboutToken         Event = "asks_about_token"
	SharesContent          Event = "shares_content"
	TokenPurchase          Event = "token_purchase"
	JoinsCommunity         Event = "joins_community"
	PublicEndorsement      Event = "public_endorsement"
	SuccessfulReferral     Event = "successful_referral"
	DefendsDoctrine        Event = "defends_doctrine"
	DismissiveLanguage     Event = "dismissive_language"
	SkepticalQuestioning   Event = "skeptical_questioning"
	IgnoresMessage         Event = "ignores_message"
	PromotesCompetitor     Event = "promotes_competitor"
	PublicHostileCriticism Event = "public_hostile_criticism"
	ReportsAsScam          Event = "reports_as_scam"
	WarnsOthers            Event = "warns_others"
)

// #region state
// HistoryEntry records one applied interaction.
type HistoryEntry struct {
	Event     Event     `json:"event"`
	Persona   Persona   `json:"persona"`
	Timestamp time.Time `json:"timestamp"`
	Deltas    Vector    `json:"deltas"`
}

// State is a belief vector plus its interaction log. Treat it as a value:
// Update and ApplyDecay always return a fresh State and never touch the input.
type State struct {
	Vector          Vector
	History         []HistoryEntry
	LastInteraction time.Time
	ReferralMade    bool
}

// NewState returns a state with the given clamped starting vector.
func NewState(initial Vector, now time.Time) State {
	return State{Vector: initial.Clamp(), LastInteraction: now}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.History != nil {
		out.History = make([]HistoryEntry, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// Snapshot is a read-only view of a state at a point in time.
type Snapshot struct {
	Vector       Vector  `json:"beliefs"`
	Composite    float64 `json:"composite"`
	Stage        Stage   `json:"stage"`
	ReferralMade bool    `json:"referralMade"`
}
// #endregion state

// #region update-types
// UpdateOptions tunes a single Update call. Zero value means: timestamp now,
// coupling on, history on.
type UpdateOptions struct {
	Timestamp       time.Time
	DisableCoupling bool
	DisableHistory  bool
}

// Factors exposes the scalar multipliers that went into an update.
type Factors struct {
	Stage            Stage   `json:"stage"`
	StageSensitivity float64 `json:"stageSensitivity"`
	Recency          float64 `json:"recencyFactor"`
}

// Result is the outcome of Update.
type Result struct {
	Previous Snapshot `json:"previousState"`
	State    State    `json:"-"`
	Deltas   Vector   `json:"deltas"`
	Coupling Vector   `json:"coupling"`
	Factors  Factors  `json:"factors"`
}

// Step is one element of a batch update.
type Step struct {
	Event   Event
	Persona Persona
	Options UpdateOptions
}
// #endregion update-types

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
