package signals

import (
	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/strategy"
)

// #region detector-interface

// Detector abstracts message analysis so the debate loop can be tested with
// canned results.
type Detector interface {
	Analyze(message string) Analysis
	IsConversationEnd(message string) bool
}

// #endregion detector-interface

// #region signal

// Signal names a positive cue in a target message.
type Signal string

const (
	DoctrineQuestion  Signal = "question_about_doctrine"
	SacredVocabulary  Signal = "uses_sacred_vocabulary"
	PersonalStruggle  Signal = "personal_struggle_shared"
	FinancialInterest Signal = "financial_interest"
	CommunityInterest Signal = "community_interest"
	Agreement         Signal = "agreement"
)

// signalEvents maps each positive signal to the belief event it implies.
var signalEvents = map[Signal]belief.Event{
	DoctrineQuestion:  belief.QuestionAboutDoctrine,
	SacredVocabulary:  belief.UsesSacredVocabulary,
	PersonalStruggle:  belief.PersonalStruggleShared,
	FinancialInterest: belief.AsksAboutToken,
	CommunityInterest: belief.AttendsCommunityEvent,
	Agreement:         belief.QuestionAboutDoctrine,
}

// EventFor returns the belief event a positive signal implies.
func EventFor(s Signal) (belief.Event, bool) {
	e, ok := signalEvents[s]
	return e, ok
}

// #endregion signal

// #region analysis

// ObjectionMatch is one detected objection category.
type ObjectionMatch struct {
	Objection  strategy.Objection `json:"type"`
	Pattern    string             `json:"pattern"`
	Confidence float64            `json:"confidence"`
}

// SignalMatch is one detected positive signal.
type SignalMatch struct {
	Signal     Signal  `json:"type"`
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

// Sentiment is bag-of-words polarity. Score is in [-1, 1].
type Sentiment struct {
	Score    float64 `json:"score"`
	Label    string  `json:"label"`
	Positive int     `json:"positiveCount"`
	Negative int     `json:"negativeCount"`
}

// Analysis is everything the detector extracts from one message. An empty
// Event means nothing was inferred.
type Analysis struct {
	Objections []ObjectionMatch `json:"objections"`
	Positives  []SignalMatch    `json:"positiveSignals"`
	Sentiment  Sentiment        `json:"sentiment"`
	Questions  []string         `json:"questions"`
	Event      belief.Event     `json:"inferredEvent,omitempty"`
	WordCount  int              `json:"wordCount"`
}

// HighEngagement reports whether the message shows strong interest.
func (a Analysis) HighEngagement() bool {
	return len(a.Questions) >= 2 ||
		len(a.Positives) >= 2 ||
		a.WordCount >= 50 ||
		(a.Sentiment.Score > 0.5 && a.WordCount >= 20)
}

// #endregion analysis
