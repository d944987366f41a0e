package signals

// #region imports
import (
	"regexp"
	"strings"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/strategy"
)

// #endregion

// #region patterns

type objectionPatterns struct {
	objection strategy.Objection
	patterns  []*regexp.Regexp
}

type signalPatterns struct {
	signal   Signal
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Categories are checked in order; within one category the first matching
// pattern wins.
var objectionTable = []objectionPatterns{
	{strategy.ScamAccusation, compile(`scam`, `fraud`, `ponzi`, `rug\s*pull`, `fake`, `stealing`, `theft`, `con\s*artist`)},
	{strategy.CultComparison, compile(`cult`, `brainwash`, `indoctrinat`, `sect`, `manipulation`, `control`)},
	{strategy.TechnicalDoubt, compile(`how does it (actually )?work`, `technical(ly)?`, `prove`, `evidence`, `audit`, `code`, `smart contract`)},
	{strategy.FinancialRisk, compile(`lose money`, `risk`, `investment`, `guarantee`, `return`, `profit`, `afford`)},
	{strategy.CompetitorLoyalty, compile(`bitcoin`, `ethereum`, `already (have|use|own)`, `prefer`, `better than`, `why not just`)},
	{strategy.TimeWaste, compile(`waste.*(time|money)`, `not interested`, `leave me alone`, `stop`, `busy`, `don't care`)},
	{strategy.TooGoodToBeTrue, compile(`too good`, `sounds like`, `catch`, `what's the catch`, `suspicious`, `believe`)},
	{strategy.PrivacyConcerns, compile(`privacy`, `data`, `tracking`, `anonymous`, `personal information`, `kyc`)},
}

var signalTable = []signalPatterns{
	{DoctrineQuestion, compile(`tell me more`, `how does`, `what is`, `explain`, `curious`, `interested in`, `want to (know|learn|understand)`)},
	{SacredVocabulary, compile(`divi`, `sacred`, `decentrali[sz]`, `consensus`, `ledger`, `covenant`, `faithful`)},
	{PersonalStruggle, compile(`i('ve| have) been`, `my experience`, `happened to me`, `struggling with`, `looking for`, `need`)},
	{FinancialInterest, compile(`how (do i |can i )?buy`, `invest`, `token`, `price`, `where can i`, `get started`)},
	{CommunityInterest, compile(`community`, `discord`, `join`, `meet`, `other (people|members)`, `events`)},
	{Agreement, compile(`makes sense`, `i agree`, `you're right`, `good point`, `never thought of it`, `interesting`)},
}

var endPatterns = compile(
	`\b(bye|goodbye|later|leave|stop|quit|exit|done)\b`,
	`\b(not interested|go away|leave me alone)\b`,
	`\b(thanks,? (that's all|i'm good|enough))\b`,
)

var (
	sentenceSplit  = regexp.MustCompile(`[.!?]+`)
	questionPrefix = regexp.MustCompile(`(?i)^(what|how|why|when|where|who|can|do|is|are|will|would|should)`)
)

// Polarity words match as substrings of each lowercased token.
var positiveWords = []string{
	"good", "great", "love", "like", "interesting", "amazing",
	"thanks", "helpful", "agree", "yes", "definitely", "absolutely",
}

var negativeWords = []string{
	"bad", "hate", "dislike", "boring", "scam", "fake",
	"no", "never", "wrong", "stupid", "waste", "terrible",
}

const (
	objectionConfidence = 0.8
	signalConfidence    = 0.7
	sentimentCutoff     = 0.3
)

// #endregion

// #region detector

// LexicalDetector is the fixed-priority pattern matcher. It holds no state
// and is safe for concurrent use.
type LexicalDetector struct{}

// NewLexicalDetector returns the default detector.
func NewLexicalDetector() *LexicalDetector {
	return &LexicalDetector{}
}

var _ Detector = (*LexicalDetector)(nil)

// Analyze runs every detector over message.
func (d *LexicalDetector) Analyze(message string) Analysis {
	a := Analysis{
		Objections: d.Objections(message),
		Positives:  d.Positives(message),
		Sentiment:  d.Sentiment(message),
		Questions:  d.Questions(message),
		WordCount:  len(tokenize(message)),
	}
	a.Event = infer(a)
	return a
}

// Objections returns at most one match per objection category.
func (d *LexicalDetector) Objections(message string) []ObjectionMatch {
	var out []ObjectionMatch
	for _, row := range objectionTable {
		if p := firstMatch(row.patterns, message); p != nil {
			out = append(out, ObjectionMatch{Objection: row.objection, Pattern: p.String(), Confidence: objectionConfidence})
		}
	}
	return out
}

// Positives returns at most one match per positive signal.
func (d *LexicalDetector) Positives(message string) []SignalMatch {
	var out []SignalMatch
	for _, row := range signalTable {
		if p := firstMatch(row.patterns, message); p != nil {
			out = append(out, SignalMatch{Signal: row.signal, Pattern: p.String(), Confidence: signalConfidence})
		}
	}
	return out
}

// #endregion

// #region sentiment

// Sentiment scores (positive - negative) / (positive + negative) over
// whitespace tokens. A token may count on both sides.
func (d *LexicalDetector) Sentiment(message string) Sentiment {
	var s Sentiment
	for _, tok := range tokenize(message) {
		if containsAny(tok, positiveWords) {
			s.Positive++
		}
		if containsAny(tok, negativeWords) {
			s.Negative++
		}
	}
	total := s.Positive + s.Negative
	s.Label = "neutral"
	if total == 0 {
		return s
	}
	s.Score = float64(s.Positive-s.Negative) / float64(total)
	switch {
	case s.Score > sentimentCutoff:
		s.Label = "positive"
	case s.Score < -sentimentCutoff:
		s.Label = "negative"
	}
	return s
}

// #endregion

// #region questions

// Questions returns the sentences that open with an interrogative word.
func (d *LexicalDetector) Questions(message string) []string {
	var out []string
	for _, part := range sentenceSplit.Split(message, -1) {
		s := strings.TrimSpace(part)
		if s != "" && questionPrefix.MatchString(s) {
			out = append(out, s)
		}
	}
	return out
}

// #endregion

// #region end-detection

// IsConversationEnd reports whether the message closes the conversation.
func (d *LexicalDetector) IsConversationEnd(message string) bool {
	return firstMatch(endPatterns, message) != nil
}

// #endregion

// #region infer

// infer picks the event for an analyzed message. Objections win over
// positive signals, and sentiment is the fallback.
func infer(a Analysis) belief.Event {
	if len(a.Objections) > 0 {
		switch a.Objections[0].Objection {
		case strategy.ScamAccusation, strategy.CultComparison:
			if a.Sentiment.Score < -sentimentCutoff {
				return belief.PublicHostileCriticism
			}
			return belief.SkepticalQuestioning
		case strategy.TimeWaste:
			return belief.DismissiveLanguage
		case strategy.CompetitorLoyalty:
			return belief.PromotesCompetitor
		default:
			return belief.SkepticalQuestioning
		}
	}
	if len(a.Positives) > 0 {
		if e, ok := EventFor(a.Positives[0].Signal); ok {
			return e
		}
	}
	switch a.Sentiment.Label {
	case "positive":
		return belief.QuestionAboutDoctrine
	case "negative":
		return belief.DismissiveLanguage
	}
	return ""
}

// #endregion

// #region helpers

func firstMatch(patterns []*regexp.Regexp, s string) *regexp.Regexp {
	for _, p := range patterns {
		if p.MatchString(s) {
			return p
		}
	}
	return nil
}

func containsAny(tok string, words []string) bool {
	for _, w := range words {
		if strings.Contains(tok, w) {
			return true
		}
	}
	return false
}

// tokenize splits text into lowercase whitespace-delimited tokens.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// #endregion
