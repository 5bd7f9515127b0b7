package mbc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowTool struct {
	name  string
	delay time.Duration
	out   any
	err   error
	panic bool
}

func (t slowTool) Definition() ToolDefinition {
	return ToolDefinition{Name: t.name, Description: "test tool"}
}

func (t slowTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	if t.panic {
		panic("tool blew up")
	}
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	return t.out, t.err
}

func newTestAgent(t *testing.T, parallel bool, sink Sink, tools ...Tool) *Agent {
	t.Helper()
	toolkit := NewToolkit()
	require.NoError(t, toolkit.Register(tools...))
	return NewAgent(toolkit, "session-1", parallel, sink, zerolog.Nop())
}

func TestAgent_SequentialPreservesOrder(t *testing.T) {
	agent := newTestAgent(t, false, nil,
		slowTool{name: "alpha", out: "a"},
		slowTool{name: "beta", out: "b"},
	)

	results := agent.ExecuteTools(context.Background(), []ToolCall{
		{ID: "1", Name: "alpha"},
		{ID: "2", Name: "beta"},
		{ID: "3", Name: "alpha"},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Content)
	assert.Equal(t, "b", results[1].Content)
	assert.Equal(t, "a", results[2].Content)
	assert.Equal(t, "1", results[0].ToolUseID)
	assert.Equal(t, "3", results[2].ToolUseID)
}

func TestAgent_ParallelPreservesSubmissionOrder(t *testing.T) {
	agent := newTestAgent(t, true, nil,
		slowTool{name: "slow", out: "slow-result", delay: 50 * time.Millisecond},
		slowTool{name: "fast", out: "fast-result"},
	)

	results := agent.ExecuteTools(context.Background(), []ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "slow-result", results[0].Content)
	assert.Equal(t, "fast-result", results[1].Content)
}

func TestAgent_UnknownToolBecomesErrorResult(t *testing.T) {
	agent := newTestAgent(t, false, nil, slowTool{name: "known", out: "ok"})

	results := agent.ExecuteTools(context.Background(), []ToolCall{
		{ID: "1", Name: "nope"},
		{ID: "2", Name: "known"},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "not registered")
	assert.False(t, results[1].IsError)
}

func TestAgent_ToolErrorIsIsolated(t *testing.T) {
	agent := newTestAgent(t, false, nil,
		slowTool{name: "broken", err: errors.New("internal secret detail")},
	)

	results := agent.ExecuteTools(context.Background(), []ToolCall{{ID: "1", Name: "broken"}})

	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	// The raw error stays in the logs; the model gets a generic diagnostic.
	assert.NotContains(t, results[0].Content, "internal secret detail")
	assert.Contains(t, results[0].Content, "broken")
}

func TestAgent_PanicRecovered(t *testing.T) {
	agent := newTestAgent(t, false, nil, slowTool{name: "bomb", panic: true})

	results := agent.ExecuteTools(context.Background(), []ToolCall{{ID: "1", Name: "bomb"}})

	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "bomb", results[0].ToolName)
}

func TestAgent_InvalidInputRejected(t *testing.T) {
	toolkit := NewToolkit()
	require.NoError(t, toolkit.Register(echoTool{}))
	agent := NewAgent(toolkit, "session-1", false, nil, zerolog.Nop())

	results := agent.ExecuteTools(context.Background(), []ToolCall{
		{ID: "1", Name: "echo", Input: map[string]any{"value": 42}},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "invalid input")
}

func TestAgent_EmitsEventPerCall(t *testing.T) {
	sink := &captureSink{}
	agent := newTestAgent(t, false, sink, slowTool{name: "a", out: "ok"})

	agent.ExecuteTools(context.Background(), []ToolCall{
		{ID: "1", Name: "a"},
		{ID: "2", Name: "missing"},
	})

	events := sink.all()
	require.Len(t, events, 2)
	for _, e := range events {
		executed, ok := e.(ToolExecutedEvent)
		require.True(t, ok)
		assert.Equal(t, "session-1", executed.SessionUUID)
	}
}
