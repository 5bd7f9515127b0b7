// Package tools provides ready-made capabilities for sessions, built on
// the mbc.Tool contract.
package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/undergrace/mbc/pkg/mbc"
)

// AgentProfile describes a named sub-agent the spawn tool can delegate to.
type AgentProfile struct {
	SystemPrompt string
	Tools        []mbc.Tool
	Model        string
	MaxTurns     int
}

// SpawnAgent lets a session delegate a subtask to a registered sub-agent
// profile, running a child session to completion and returning its output.
type SpawnAgent struct {
	deps     mbc.Deps
	profiles map[string]AgentProfile
}

// NewSpawnAgent creates a spawn tool. Child sessions run against the same
// provider and store as the parent.
func NewSpawnAgent(deps mbc.Deps) *SpawnAgent {
	return &SpawnAgent{
		deps:     deps,
		profiles: make(map[string]AgentProfile),
	}
}

// Register adds a sub-agent profile under name. A zero MaxTurns defaults
// to 15; re-registering a name replaces the earlier profile.
func (t *SpawnAgent) Register(name string, profile AgentProfile) *SpawnAgent {
	if profile.MaxTurns <= 0 {
		profile.MaxTurns = 15
	}
	t.profiles[name] = profile
	return t
}

// Profiles returns the registered profile names, sorted.
func (t *SpawnAgent) Profiles() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *SpawnAgent) Definition() mbc.ToolDefinition {
	return mbc.ToolDefinition{
		Name: "spawn_agent",
		Description: "Spawn a sub-agent to handle a specialized subtask. " +
			"The sub-agent runs its own session and returns its final output.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_name": map[string]any{
					"type":        "string",
					"description": "Name of the registered sub-agent to spawn",
				},
				"task": map[string]any{
					"type":        "string",
					"description": "The task for the sub-agent to perform",
				},
				"context": map[string]any{
					"type":        "string",
					"description": "Additional context to pass to the sub-agent",
				},
			},
			"required": []string{"agent_name", "task"},
		},
	}
}

func (t *SpawnAgent) Execute(ctx context.Context, input map[string]any) (any, error) {
	name, _ := input["agent_name"].(string)
	task, _ := input["task"].(string)
	parentContext, _ := input["context"].(string)

	profile, ok := t.profiles[name]
	if !ok {
		return map[string]any{
			"error": fmt.Sprintf("Unknown sub-agent '%s'. Available: %s",
				name, strings.Join(t.Profiles(), ", ")),
		}, nil
	}

	cfg := mbc.DefaultConfig()
	cfg.MaxTurns = profile.MaxTurns
	if profile.Model != "" {
		cfg.Model = profile.Model
	}

	session := mbc.NewSession("sub:"+name, t.deps).
		SystemPrompt(profile.SystemPrompt).
		Tools(profile.Tools...).
		Config(cfg)

	if parentContext != "" {
		session.Context(map[string]any{"parent_context": parentContext})
	}

	if err := session.Start(ctx, task); err != nil {
		return map[string]any{
			"agent":  name,
			"status": "failed",
			"error":  err.Error(),
		}, nil
	}

	result := session.Result()
	return map[string]any{
		"agent":      name,
		"status":     string(result.Status),
		"output":     result.FinalMessage,
		"turns_used": result.TotalTurns,
		"cost_usd":   math.Round(result.EstimatedCostUSD*1e6) / 1e6,
	}, nil
}
