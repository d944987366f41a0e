package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

func TestCounterArgumentPersonaFallback(t *testing.T) {
	own, err := CounterArgument(ScamAccusation, belief.Missionary)
	require.NoError(t, err)
	fallback, err := CounterArgument(ScamAccusation, belief.Prophet)
	require.NoError(t, err)
	theo, err := CounterArgument(ScamAccusation, belief.Theologian)
	require.NoError(t, err)

	assert.NotEqual(t, theo.Response, own.Response)
	assert.Equal(t, theo.Response, fallback.Response)
	assert.Equal(t, "high", theo.Severity)
	assert.Equal(t, []string{
		"Acknowledge the concern without arguing",
		"Point to public, checkable information",
		"Give them room and lower the pressure",
	}, theo.RecoveryPath)
}

func TestCounterArgumentUnknown(t *testing.T) {
	_, err := CounterArgument("weather", belief.Theologian)
	assert.ErrorIs(t, err, ErrUnknownObjection)
}

func TestEveryObjectionHasTheologianResponse(t *testing.T) {
	for _, o := range Objections {
		c, err := CounterArgument(o, belief.Observer)
		require.NoError(t, err, o)
		assert.NotEmpty(t, c.Response, o)
		assert.NotEmpty(t, c.RecoveryPath, o)
		for _, step := range c.RecoveryPath {
			assert.NotEmpty(t, step, o)
		}
	}
}
