package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_KnownModel(t *testing.T) {
	// gpt-4o: $2.50 in, $10 out per million.
	cost := Estimate("gpt-4o", 1_000_000, 1_000_000)
	assert.InDelta(t, 12.50, cost, 1e-9)
}

func TestEstimate_ZeroTokens(t *testing.T) {
	assert.Equal(t, 0.0, Estimate("gpt-4o", 0, 0))
}

func TestEstimate_PartialMatch(t *testing.T) {
	// A dated claude-opus-4 release matches the family entry.
	input, output := Rates("claude-opus-4-20250514")
	assert.Equal(t, 15.0, input)
	assert.Equal(t, 75.0, output)
}

func TestRates_PartialMatchIsDeterministic(t *testing.T) {
	// This id contains both the "o3-mini" and "o3" keys; the longer, more
	// specific entry must win on every call.
	for i := 0; i < 200; i++ {
		input, output := Rates("o3-mini-2025-01-31")
		assert.Equal(t, 1.10, input)
		assert.Equal(t, 4.40, output)
	}
}

func TestEstimate_UnknownModelUsesDefault(t *testing.T) {
	input, output := Rates("totally-made-up-model")
	assert.Equal(t, 3.0, input)
	assert.Equal(t, 15.0, output)
}

func TestEstimate_Proportional(t *testing.T) {
	small := Estimate("claude-sonnet-4", 1000, 500)
	large := Estimate("claude-sonnet-4", 2000, 1000)
	assert.InDelta(t, small*2, large, 1e-12)
}
