package generator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// #region canned

var cannedResponses = map[belief.Persona][]string{
	belief.Prophet: {
		"The shared ledger keeps every promise in the open. That is what drew me here first.",
		"I have watched a thousand strangers agree without a master. There is something beautiful in that.",
		"You did not wander in by accident. Ask me anything.",
	},
	belief.Theologian: {
		"Let me walk through the mechanism. Consensus here means independent verification, nothing more mysterious.",
		"Your skepticism is reasonable. Let's look at the evidence one piece at a time.",
		"The design choices are documented, and I can point you to the parts that answer your concern.",
	},
	belief.Missionary: {
		"I had the same doubts when I started. Can I tell you how it went for me?",
		"People here really do look out for each other. What are you hoping to find?",
		"What brought you to ask about this? I'd love to hear.",
	},
	belief.Archivist: {
		"The founding whitepaper speaks to this in its third section.",
		"Our records show steady growth through participation rather than speculation.",
		"Let me find the passage that addresses your question.",
	},
	belief.Observer: {
		"Current indicators show a modest positive trend. Confidence is moderate.",
		"Belief coherence is within the expected range. Continued engagement is reasonable.",
		"Observed signals: technical interest, emotional alignment. Probability estimate follows.",
	},
}

// #endregion canned

// #region mock

// Call records one request seen by a Mock.
type Call struct {
	System string
	User   string
	Opts   Options
}

// Mock is a deterministic Generator and Streamer. Responses rotate through
// the per-persona list in order.
type Mock struct {
	// Responses overrides the canned text per persona. The empty persona key
	// applies to every persona without its own list.
	Responses map[belief.Persona][]string
	// Err, when set, fails every call with a ProviderError.
	Err error
	// Delay is waited before answering, honoring ctx.
	Delay time.Duration

	mu    sync.Mutex
	next  map[belief.Persona]int
	calls []Call
}

var (
	_ Generator = (*Mock)(nil)
	_ Streamer  = (*Mock)(nil)
)

// NewMock returns a mock with the canned responses.
func NewMock() *Mock {
	return &Mock{}
}

// Generate returns the next response for opts.Persona.
func (m *Mock) Generate(ctx context.Context, system, user string, opts Options) (string, error) {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", &ProviderError{Provider: "mock", Persona: opts.Persona, Err: ctx.Err()}
		case <-t.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{System: system, User: user, Opts: opts})
	if m.Err != nil {
		return "", &ProviderError{Provider: "mock", Persona: opts.Persona, Err: m.Err}
	}

	list := m.Responses[opts.Persona]
	if len(list) == 0 {
		list = m.Responses[""]
	}
	if len(list) == 0 {
		list = cannedResponses[opts.Persona]
	}
	if len(list) == 0 {
		list = cannedResponses[belief.Missionary]
	}
	if m.next == nil {
		m.next = make(map[belief.Persona]int)
	}
	i := m.next[opts.Persona]
	m.next[opts.Persona] = i + 1
	return list[i%len(list)], nil
}

// Stream yields the generated response word by word.
func (m *Mock) Stream(ctx context.Context, system, user string, opts Options, fn func(string) error) error {
	text, err := m.Generate(ctx, system, user, opts)
	if err != nil {
		return err
	}
	for _, w := range strings.Fields(text) {
		if err := ctx.Err(); err != nil {
			return &ProviderError{Provider: "mock", Persona: opts.Persona, Err: err}
		}
		if err := fn(w + " "); err != nil {
			return err
		}
	}
	return nil
}

// SetErr changes the failure returned by later calls.
func (m *Mock) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

// Calls returns a copy of every recorded request.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// #endregion mock
