package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

func TestBuildUnknownPersona(t *testing.T) {
	_, err := Build(Input{Persona: "oracle", Message: "hi"})
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestBuildMinimal(t *testing.T) {
	p, err := Build(Input{Persona: belief.Theologian, Message: "how does it work"})
	require.NoError(t, err)

	assert.Equal(t, Profiles[belief.Theologian].System, p.System)
	assert.Equal(t, "--- CURRENT MESSAGE ---\n[USER]: how does it work\n\nRespond as Dr. Merkle Byzantine:", p.User)
	assert.Equal(t, 0.3, p.Temperature)
	assert.Equal(t, 400, p.MaxTokens)
}

func TestBuildTargetAndStrategy(t *testing.T) {
	p, err := Build(Input{
		Persona: belief.Missionary,
		Target: &TargetProfile{
			Stage:      belief.Interested,
			Composite:  37.54,
			Strengths:  []belief.Dimension{belief.Technical, belief.Trust},
			Weaknesses: []belief.Dimension{belief.Belief, belief.Emotional},
		},
		Strategy: "Emotional Connection",
		Message:  "hello",
	})
	require.NoError(t, err)

	assert.Contains(t, p.System, "Current Stage: INTERESTED\n")
	assert.Contains(t, p.System, "Belief Score: 37.5\n")
	assert.Contains(t, p.System, "Archetype: Unknown\n")
	assert.Contains(t, p.System, "Key Strengths: technical, trust\n")
	assert.Contains(t, p.System, "Key Weaknesses: belief, emotional")
	assert.True(t, strings.HasSuffix(p.System, "Current Strategy: Emotional Connection\nFocus your response on this approach."))
}

func TestBuildHistoryWindowAndObjection(t *testing.T) {
	var history []Turn
	for i := 0; i < 12; i++ {
		turn := Turn{Role: RoleTarget, Content: fmt.Sprintf("msg-%02d", i)}
		if i%2 == 1 {
			turn = Turn{Role: RoleAgent, Persona: belief.Prophet, Content: fmt.Sprintf("msg-%02d", i)}
		}
		history = append(history, turn)
	}

	p, err := Build(Input{
		Persona:   belief.Prophet,
		History:   history,
		Objection: "scam_accusation",
		Message:   "is this real",
	})
	require.NoError(t, err)

	assert.NotContains(t, p.User, "msg-00")
	assert.NotContains(t, p.User, "msg-01")
	assert.Contains(t, p.User, "[USER]: msg-02\n")
	assert.Contains(t, p.User, "[PROPHET]: msg-11\n")
	assert.Contains(t, p.User, "--- OBJECTION DETECTED ---\nThe user has expressed: \"scam_accusation\"\n")
	assert.True(t, strings.Index(p.User, "OBJECTION") < strings.Index(p.User, "CURRENT MESSAGE"))
}

func TestBuildObjectionCarriesCounter(t *testing.T) {
	p, err := Build(Input{
		Persona:   belief.Theologian,
		Objection: "scam_accusation",
		Counter:   "Everything is on a public ledger.",
		Recovery:  []string{"Acknowledge", "Point to public records"},
		Message:   "is this a scam",
	})
	require.NoError(t, err)
	assert.Contains(t, p.User, "The user has expressed: \"scam_accusation\"\n"+
		"Suggested approach: Everything is on a public ledger.\n"+
		"Recovery path: Acknowledge; Point to public records\n"+
		"Address this concern in your response.")

	p, err = Build(Input{Persona: belief.Theologian, Counter: "ignored", Message: "hello"})
	require.NoError(t, err)
	assert.NotContains(t, p.User, "Suggested approach")
}

func TestEveryPersonaHasProfile(t *testing.T) {
	for _, p := range belief.Default().Personas {
		prof, ok := ProfileFor(p)
		require.True(t, ok, p)
		assert.Equal(t, p, prof.Persona)
		assert.NotEmpty(t, prof.System)
		assert.Positive(t, prof.MaxTokens)
	}
}
