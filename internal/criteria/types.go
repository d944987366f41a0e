package criteria

import (
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// #region flag-names
// Manual flag names read by the default criteria.
const (
	FlagPublicAcknowledgment   = "publicAcknowledgment"
	FlagTokenInvestment        = "tokenInvestment"
	FlagCommunityParticipation = "communityParticipation"
	FlagPositiveStatement      = "positiveStatement"
	FlagFinancialCommitment    = "financialCommitment"
)

// #endregion flag-names

// #region subject
// Subject is the read-only view of a target that predicates inspect.
type Subject struct {
	Composite    float64
	ReferralMade bool
	Flags        map[string]bool
	History      []belief.HistoryEntry
	Now          time.Time
}

// Flag reports a manual flag, false when unset.
func (s Subject) Flag(name string) bool {
	return s.Flags[name]
}

// #endregion subject

// #region criterion
// Criterion is a named boolean predicate over a Subject.
type Criterion struct {
	Name        string
	Description string
	Check       func(Subject) bool
}

// Set is an ordered list of criteria with the count required to pass.
type Set struct {
	Name     string
	Required int
	Criteria []Criterion
}

// Status reports one criterion against a subject.
type Status struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Met         bool   `json:"met"`
}

// Evaluation is the output of Set.Evaluate.
type Evaluation struct {
	Set       string   `json:"set"`
	Met       []string `json:"criteriaMet"`
	Statuses  []Status `json:"statuses"`
	Required  int      `json:"required"`
	Satisfied bool     `json:"satisfied"`
}

// #endregion criterion
