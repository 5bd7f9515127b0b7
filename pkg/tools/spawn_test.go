package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undergrace/mbc/pkg/mbc"
)

type stubProvider struct {
	mu      sync.Mutex
	prompts []string
	models  []string
	err     error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, system string, messages []mbc.Message, tools []mbc.ToolDefinition, cfg mbc.Config) (*mbc.ProviderResponse, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, system)
	p.models = append(p.models, cfg.Model)
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	return &mbc.ProviderResponse{
		StopReason:   mbc.StopEndTurn,
		Content:      []mbc.ContentBlock{mbc.TextBlock("subtask done")},
		Text:         "subtask done",
		InputTokens:  100,
		OutputTokens: 50,
	}, nil
}

func TestSpawnAgent_Definition(t *testing.T) {
	tool := NewSpawnAgent(mbc.Deps{Logger: zerolog.Nop()})

	def := tool.Definition()
	assert.Equal(t, "spawn_agent", def.Name)

	props := def.InputSchema["properties"].(map[string]any)
	assert.Contains(t, props, "agent_name")
	assert.Contains(t, props, "task")
	assert.Contains(t, props, "context")
	assert.Equal(t, []string{"agent_name", "task"}, def.InputSchema["required"])
}

func TestSpawnAgent_RunsRegisteredProfile(t *testing.T) {
	provider := &stubProvider{}
	tool := NewSpawnAgent(mbc.Deps{Provider: provider, Logger: zerolog.Nop()}).
		Register("researcher", AgentProfile{
			SystemPrompt: "you research things",
			Model:        "gpt-4o-mini",
		})

	out, err := tool.Execute(context.Background(), map[string]any{
		"agent_name": "researcher",
		"task":       "find the facts",
	})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "researcher", result["agent"])
	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, "subtask done", result["output"])
	assert.Equal(t, 1, result["turns_used"])
	assert.Greater(t, result["cost_usd"], 0.0)

	require.Len(t, provider.prompts, 1)
	assert.Equal(t, "you research things", provider.prompts[0])
	assert.Equal(t, "gpt-4o-mini", provider.models[0])
}

func TestSpawnAgent_UnknownAgent(t *testing.T) {
	tool := NewSpawnAgent(mbc.Deps{Logger: zerolog.Nop()}).
		Register("alpha", AgentProfile{}).
		Register("beta", AgentProfile{})

	out, err := tool.Execute(context.Background(), map[string]any{
		"agent_name": "gamma",
		"task":       "anything",
	})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Contains(t, result["error"], "Unknown sub-agent 'gamma'")
	assert.Contains(t, result["error"], "alpha, beta")
}

func TestSpawnAgent_ChildFailureReported(t *testing.T) {
	provider := &stubProvider{err: errors.New("upstream down")}
	tool := NewSpawnAgent(mbc.Deps{Provider: provider, Logger: zerolog.Nop()}).
		Register("worker", AgentProfile{})

	out, err := tool.Execute(context.Background(), map[string]any{
		"agent_name": "worker",
		"task":       "do it",
	})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "failed", result["status"])
	assert.Contains(t, result["error"], "upstream down")
}

func TestSpawnAgent_DefaultMaxTurns(t *testing.T) {
	tool := NewSpawnAgent(mbc.Deps{Logger: zerolog.Nop()}).
		Register("worker", AgentProfile{})

	assert.Equal(t, 15, tool.profiles["worker"].MaxTurns)
	assert.Equal(t, []string{"worker"}, tool.Profiles())
}
