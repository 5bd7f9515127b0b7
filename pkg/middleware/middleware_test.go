package middleware

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undergrace/mbc/pkg/mbc"
)

func passResponse(resp *mbc.ProviderResponse) (*mbc.ProviderResponse, error) {
	return resp, nil
}

func passResults(results []mbc.ToolResult) ([]mbc.ToolResult, error) {
	return results, nil
}

func TestLogTurns_PassesThrough(t *testing.T) {
	m := NewLogTurns(zerolog.Nop())

	resp := &mbc.ProviderResponse{ID: "r1", Text: "hello"}
	got, err := m.AfterResponse(resp, passResponse)
	require.NoError(t, err)
	assert.Same(t, resp, got)

	results := []mbc.ToolResult{{ToolUseID: "1", ToolName: "echo"}}
	gotResults, err := m.AfterToolExecution(results, passResults)
	require.NoError(t, err)
	assert.Equal(t, results, gotResults)
}

func TestCostTracker_Accumulates(t *testing.T) {
	m := NewCostTracker("gpt-4o", zerolog.Nop())

	_, err := m.AfterResponse(&mbc.ProviderResponse{InputTokens: 1000, OutputTokens: 500}, passResponse)
	require.NoError(t, err)
	_, err = m.AfterResponse(&mbc.ProviderResponse{InputTokens: 2000, OutputTokens: 1500}, passResponse)
	require.NoError(t, err)

	input, output := m.Cumulative()
	assert.Equal(t, 3000, input)
	assert.Equal(t, 2000, output)

	// gpt-4o: 3000*2.50/1M + 2000*10/1M
	assert.InDelta(t, 0.0275, m.Cost(), 1e-9)
}

func TestCostTracker_EmptyModelUsesDefault(t *testing.T) {
	m := NewCostTracker("", zerolog.Nop())
	assert.Equal(t, mbc.DefaultModel, m.model)
}

func TestRateLimiter_TripsPastCeiling(t *testing.T) {
	m := NewRateLimiter(2)
	resp := &mbc.ProviderResponse{}

	_, err := m.AfterResponse(resp, passResponse)
	require.NoError(t, err)
	_, err = m.AfterResponse(resp, passResponse)
	require.NoError(t, err)

	_, err = m.AfterResponse(resp, passResponse)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum of 2 turns")
}

func TestRateLimiter_ToolExecutionUnaffected(t *testing.T) {
	m := NewRateLimiter(0)

	results, err := m.AfterToolExecution([]mbc.ToolResult{{ToolUseID: "1"}}, passResults)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
