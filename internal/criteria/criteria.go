package criteria

import "time"

// #region defaults
// FullConversion returns the five full-conversion criteria, three of which must hold.
func FullConversion() Set {
	return Set{
		Name:     "full",
		Required: 3,
		Criteria: []Criterion{
			CompositeAtLeast(75),
			FlagSet("public_acknowledgment", "Made public positive statement", FlagPublicAcknowledgment),
			FlagSet("token_investment", "Purchased any amount of tokens", FlagTokenInvestment),
			FlagSet("community_participation", "Active in community channels or events", FlagCommunityParticipation),
			{
				Name:        "referral_activity",
				Description: "Referred at least one other person",
				Check:       func(s Subject) bool { return s.ReferralMade },
			},
		},
	}
}

// PartialConversion returns the four partial-conversion criteria, two of which must hold.
func PartialConversion() Set {
	return Set{
		Name:     "partial",
		Required: 2,
		Criteria: []Criterion{
			CompositeAtLeast(60),
			FlagSet("positive_statement", "Made any positive statement", FlagPositiveStatement),
			FlagSet("financial_commitment", "Shown financial interest or commitment", FlagFinancialCommitment),
			RecentInteractions("ongoing_engagement", "Continuing engagement with agents", 3, 7*24*time.Hour),
		},
	}
}

// #endregion defaults

// #region builders
// CompositeAtLeast passes when the composite score reaches min.
func CompositeAtLeast(min float64) Criterion {
	return Criterion{
		Name:        "belief_score_threshold",
		Description: "Composite belief score at or above threshold",
		Check:       func(s Subject) bool { return s.Composite >= min },
	}
}

// FlagSet passes when the named manual flag is true.
func FlagSet(name, description, flag string) Criterion {
	return Criterion{
		Name:        name,
		Description: description,
		Check:       func(s Subject) bool { return s.Flag(flag) },
	}
}

// RecentInteractions passes when at least n log entries fall inside the
// trailing window ending at Subject.Now.
func RecentInteractions(name, description string, n int, window time.Duration) Criterion {
	return Criterion{
		Name:        name,
		Description: description,
		Check: func(s Subject) bool {
			count := 0
			for _, h := range s.History {
				if s.Now.Sub(h.Timestamp) < window {
					count++
				}
			}
			return count >= n
		},
	}
}

// #endregion builders

// #region evaluate
// Evaluate checks every criterion in order.
func (set Set) Evaluate(s Subject) Evaluation {
	ev := Evaluation{
		Set:      set.Name,
		Required: set.Required,
		Met:      []string{},
		Statuses: make([]Status, 0, len(set.Criteria)),
	}
	for _, c := range set.Criteria {
		met := c.Check(s)
		ev.Statuses = append(ev.Statuses, Status{Name: c.Name, Description: c.Description, Met: met})
		if met {
			ev.Met = append(ev.Met, c.Name)
		}
	}
	ev.Satisfied = len(ev.Met) >= set.Required
	return ev
}

// #endregion evaluate
