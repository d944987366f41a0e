package prompt

// #region imports
import (
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// #endregion

// ErrUnknownPersona is returned when no profile exists for a persona.
var ErrUnknownPersona = errors.New("unknown persona")

// HistoryWindow is how many trailing transcript turns go into a prompt.
const HistoryWindow = 10

// #region input

// Role marks who produced a transcript turn.
type Role string

const (
	RoleTarget Role = "user"
	RoleAgent  Role = "agent"
)

// Turn is one transcript message.
type Turn struct {
	Role    Role
	Persona belief.Persona
	Content string
}

// TargetProfile summarizes the target for the system prompt.
type TargetProfile struct {
	Stage      belief.Stage
	Composite  float64
	Archetype  string
	Strengths  []belief.Dimension
	Weaknesses []belief.Dimension
}

// Input bundles everything a prompt is built from. Target, Strategy and
// Objection are optional. Counter and Recovery only appear alongside an
// objection.
type Input struct {
	Persona   belief.Persona
	Target    *TargetProfile
	Strategy  string
	History   []Turn
	Objection string
	Counter   string
	Recovery  []string
	Message   string
}

// Prompt is the assembled generator request.
type Prompt struct {
	Persona     belief.Persona
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// #endregion

// #region build

// Build assembles the system and user prompts for in.Persona.
func Build(in Input) (Prompt, error) {
	prof, ok := ProfileFor(in.Persona)
	if !ok {
		return Prompt{}, fmt.Errorf("build prompt: %w: %q", ErrUnknownPersona, in.Persona)
	}
	return Prompt{
		Persona:     in.Persona,
		System:      buildSystem(prof, in),
		User:        buildUser(prof, in),
		Temperature: prof.Temperature,
		MaxTokens:   prof.MaxTokens,
	}, nil
}

func buildSystem(prof Profile, in Input) string {
	var b strings.Builder
	b.WriteString(prof.System)

	if t := in.Target; t != nil {
		archetype := t.Archetype
		if archetype == "" {
			archetype = "Unknown"
		}
		b.WriteString("\n\n--- TARGET CONTEXT ---\n")
		fmt.Fprintf(&b, "Current Stage: %s\n", t.Stage)
		fmt.Fprintf(&b, "Belief Score: %.1f\n", t.Composite)
		fmt.Fprintf(&b, "Archetype: %s\n", archetype)
		fmt.Fprintf(&b, "Key Strengths: %s\n", joinDims(t.Strengths))
		fmt.Fprintf(&b, "Key Weaknesses: %s", joinDims(t.Weaknesses))
	}

	if in.Strategy != "" {
		b.WriteString("\n\n--- STRATEGY GUIDANCE ---\n")
		fmt.Fprintf(&b, "Current Strategy: %s\n", in.Strategy)
		b.WriteString("Focus your response on this approach.")
	}
	return b.String()
}

func buildUser(prof Profile, in Input) string {
	var b strings.Builder

	history := in.History
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	if len(history) > 0 {
		b.WriteString("--- CONVERSATION HISTORY ---\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", speaker(turn), turn.Content)
		}
		b.WriteString("\n")
	}

	if in.Objection != "" {
		b.WriteString("--- OBJECTION DETECTED ---\n")
		fmt.Fprintf(&b, "The user has expressed: %q\n", in.Objection)
		if in.Counter != "" {
			fmt.Fprintf(&b, "Suggested approach: %s\n", in.Counter)
		}
		if len(in.Recovery) > 0 {
			fmt.Fprintf(&b, "Recovery path: %s\n", strings.Join(in.Recovery, "; "))
		}
		b.WriteString("Address this concern in your response.\n\n")
	}

	b.WriteString("--- CURRENT MESSAGE ---\n")
	fmt.Fprintf(&b, "[USER]: %s\n\n", in.Message)
	fmt.Fprintf(&b, "Respond as %s:", prof.Name)
	return b.String()
}

// #endregion

// #region helpers

func speaker(t Turn) string {
	if t.Role != RoleAgent {
		return "[USER]"
	}
	if t.Persona == "" {
		return "[AGENT]"
	}
	return "[" + strings.ToUpper(string(t.Persona)) + "]"
}

func joinDims(ds []belief.Dimension) string {
	if len(ds) == 0 {
		return "Unknown"
	}
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.String()
	}
	return strings.Join(names, ", ")
}

// #endregion
