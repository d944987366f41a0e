package debate

// #region imports
import (
	"errors"
	"sync"
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/prompt"
	"github.com/danielpatrickdp/persuasion-state/internal/signals"
	"github.com/danielpatrickdp/persuasion-state/internal/strategy"
)

// #endregion

// #region errors

var (
	// ErrNoConversation is returned when a target has no open conversation.
	ErrNoConversation = errors.New("no conversation for target")
	// ErrNotActive is returned when continuing a paused or ended conversation.
	ErrNotActive = errors.New("conversation is not active")
	// ErrInvalidInput is returned for an empty target id or message.
	ErrInvalidInput = errors.New("invalid input")
)

// #endregion

// #region status

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

// #endregion

// #region conversation

// Message is one transcript line.
type Message struct {
	Role      prompt.Role    `json:"role"`
	Persona   belief.Persona `json:"agentId,omitempty"`
	Name      string         `json:"agentName,omitempty"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

// conversation is owned by the Loop. Turns on one target are serialized by
// the loop's target lock; mu guards the fields for concurrent readers.
type conversation struct {
	mu sync.Mutex

	id         string
	targetID   string
	messages   []Message
	status     Status
	persona    belief.Persona
	switches   int
	startedAt  time.Time
	pausedAt   time.Time
	resumedAt  time.Time
	startStage belief.Stage
	lastStage  belief.Stage
	hasStage   bool
	converted  bool
}

// recentPersonas returns the personas of the last n agent turns, oldest first.
func (c *conversation) recentPersonas(n int) []belief.Persona {
	var out []belief.Persona
	for i := len(c.messages) - 1; i >= 0 && len(out) < n; i-- {
		if m := c.messages[i]; m.Role == prompt.RoleAgent {
			out = append(out, m.Persona)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (c *conversation) turns() []prompt.Turn {
	out := make([]prompt.Turn, len(c.messages))
	for i, m := range c.messages {
		out[i] = prompt.Turn{Role: m.Role, Persona: m.Persona, Content: m.Content}
	}
	return out
}

// #endregion

// #region results

// Reply is the outcome of one Continue call. When the inbound message ended
// the conversation, Ended is set, Summary is filled and no persona spoke.
type Reply struct {
	ConversationID string           `json:"conversationId"`
	Persona        belief.Persona   `json:"agentId,omitempty"`
	Name           string           `json:"agentName,omitempty"`
	Text           string           `json:"content,omitempty"`
	Strategy       strategy.ID      `json:"strategy,omitempty"`
	Signals        signals.Analysis `json:"signals"`
	Analysis       belief.Analysis  `json:"analysis"`
	Length         int              `json:"conversationLength"`
	Latency        time.Duration    `json:"latency,omitempty"`
	Ended          bool             `json:"ended,omitempty"`
	Summary        *Summary         `json:"summary,omitempty"`
}

// Summary describes a finished conversation.
type Summary struct {
	TargetID        string                 `json:"targetId"`
	ConversationID  string                 `json:"conversationId"`
	Duration        time.Duration          `json:"duration"`
	MessageCount    int                    `json:"messageCount"`
	PersonaSwitches int                    `json:"agentSwitches"`
	StartStage      belief.Stage           `json:"stageAtStart"`
	EndStage        belief.Stage           `json:"stageAtEnd"`
	Status          string                 `json:"conversionStatus"`
	Beliefs         belief.Vector          `json:"finalBeliefs"`
	PersonaMessages map[belief.Persona]int `json:"agents"`
}

// State is a point-in-time view of an open conversation.
type State struct {
	ConversationID  string         `json:"conversationId"`
	Status          Status         `json:"status"`
	MessageCount    int            `json:"messageCount"`
	Persona         belief.Persona `json:"currentAgent,omitempty"`
	PersonaSwitches int            `json:"agentSwitches"`
	Duration        time.Duration  `json:"duration"`
}

// PersonaMetrics aggregates generation work per persona. Tokens is a rough
// estimate of four characters per token.
type PersonaMetrics struct {
	Messages       int           `json:"messagesGenerated"`
	Tokens         int           `json:"totalTokens"`
	AverageLatency time.Duration `json:"averageResponseTime"`
	Failures       int           `json:"failures"`
}

// #endregion
