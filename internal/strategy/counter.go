package strategy

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// ErrUnknownObjection is returned for an objection with no counter-argument.
var ErrUnknownObjection = errors.New("unknown objection")

// Objection names a category of pushback detected in a target message.
type Objection string

const (
	ScamAccusation    Objection = "scam_accusation"
	CultComparison    Objection = "cult_comparison"
	TechnicalDoubt    Objection = "technical_doubt"
	FinancialRisk     Objection = "financial_risk"
	CompetitorLoyalty Objection = "competitor_loyalty"
	TimeWaste         Objection = "time_waste"
	TooGoodToBeTrue   Objection = "too_good_to_be_true"
	PrivacyConcerns   Objection = "privacy_concerns"
)

// Objections lists every known objection in detection order.
var Objections = []Objection{
	ScamAccusation, CultComparison, TechnicalDoubt, FinancialRisk,
	CompetitorLoyalty, TimeWaste, TooGoodToBeTrue, PrivacyConcerns,
}

// Counter is the response plan for one objection and persona.
type Counter struct {
	Objection    Objection `json:"objection"`
	Category     string    `json:"category"`
	Severity     string    `json:"severity"`
	Response     string    `json:"response"`
	RecoveryPath []string  `json:"recoveryPath"`
}

type counterEntry struct {
	category  string
	severity  string
	responses map[belief.Persona]string
	recovery  []string
}

var recoveryStrategies = map[string]string{
	"acknowledge":  "Acknowledge the concern without arguing",
	"transparency": "Point to public, checkable information",
	"evidence":     "Offer concrete evidence they can verify",
	"space":        "Give them room and lower the pressure",
	"reconnect":    "Return to a shared interest before continuing",
	"compare":      "Compare honestly, including weaknesses",
}

var counters = map[Objection]counterEntry{
	ScamAccusation: {
		category: "trust", severity: "high",
		responses: map[belief.Persona]string{
			belief.Theologian: "That is a fair worry. Everything we do is on a public ledger, so you can check it yourself rather than take my word.",
			belief.Missionary: "I get it, there are a lot of bad actors out there. Take your time and look around before deciding anything.",
			belief.Observer:   "Skepticism is healthy. Here is what is verifiable and what is not.",
		},
		recovery: []string{"acknowledge", "transparency", "space"},
	},
	CultComparison: {
		category: "social", severity: "high",
		responses: map[belief.Persona]string{
			belief.Theologian: "Nobody is asked to give anything up. People come and go freely and disagree in the open.",
			belief.Missionary: "Honestly, the best part is how relaxed people are. Ask anyone in the community what they think.",
			belief.Prophet:    "Questioning is welcome here. A belief that cannot survive questions is not worth holding.",
		},
		recovery: []string{"acknowledge", "space", "reconnect"},
	},
	TechnicalDoubt: {
		category: "technical", severity: "medium",
		responses: map[belief.Persona]string{
			belief.Theologian: "Good question. The contract is open source and the mechanics are documented step by step.",
			belief.Archivist:  "The design documents go back to the first release, and every change is recorded.",
		},
		recovery: []string{"evidence", "transparency"},
	},
	FinancialRisk: {
		category: "financial", severity: "medium",
		responses: map[belief.Persona]string{
			belief.Theologian: "There is real risk. Nothing is guaranteed and you should never put in more than you can afford to lose.",
			belief.Observer:   "Prices move both ways. Here is the history, bad months included.",
		},
		recovery: []string{"acknowledge", "compare", "space"},
	},
	CompetitorLoyalty: {
		category: "loyalty", severity: "low",
		responses: map[belief.Persona]string{
			belief.Theologian: "Those are solid projects. This is not meant to replace them, it tries something different.",
			belief.Missionary: "Plenty of people here hold both. It is not an either-or.",
		},
		recovery: []string{"compare", "reconnect"},
	},
	TimeWaste: {
		category: "engagement", severity: "low",
		responses: map[belief.Persona]string{
			belief.Theologian: "No problem. I will leave it here, and the door stays open if you get curious later.",
			belief.Missionary: "Totally fair, thanks for hearing me out.",
		},
		recovery: []string{"space"},
	},
	TooGoodToBeTrue: {
		category: "trust", severity: "medium",
		responses: map[belief.Persona]string{
			belief.Theologian: "If it sounds too good, be careful. Here are the downsides people usually skip.",
			belief.Observer:   "You are right to look for the catch. These are the open risks.",
		},
		recovery: []string{"acknowledge", "evidence", "compare"},
	},
	PrivacyConcerns: {
		category: "privacy", severity: "medium",
		responses: map[belief.Persona]string{
			belief.Theologian: "You can take part without sharing personal details. Nothing here needs your identity.",
			belief.Archivist:  "What is stored and where is written down in the public docs.",
		},
		recovery: []string{"transparency", "evidence"},
	},
}

// CounterArgument returns the response plan for objection as delivered by
// persona. Personas without their own response fall back to the theologian.
func CounterArgument(objection Objection, persona belief.Persona) (Counter, error) {
	e, ok := counters[objection]
	if !ok {
		return Counter{}, fmt.Errorf("counter argument %q: %w", objection, ErrUnknownObjection)
	}
	resp, ok := e.responses[persona]
	if !ok {
		resp = e.responses[belief.Theologian]
	}
	c := Counter{
		Objection: objection,
		Category:  e.category,
		Severity:  e.severity,
		Response:  resp,
	}
	for _, step := range e.recovery {
		c.RecoveryPath = append(c.RecoveryPath, recoveryStrategies[step])
	}
	return c, nil
}
