package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undergrace/mbc/pkg/mbc"
)

func TestNew_UnsupportedBackend(t *testing.T) {
	_, err := New(Options{Backend: "cohere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cohere")
}

func TestNew_MissingAPIKey(t *testing.T) {
	for _, backend := range []string{"anthropic", "openai", "openrouter"} {
		_, err := New(Options{Backend: backend})
		require.Error(t, err, backend)

		var provErr *mbc.ProviderError
		require.ErrorAs(t, err, &provErr, backend)
	}
}

func TestNew_BuildsConfiguredBackend(t *testing.T) {
	p, err := New(Options{Backend: "anthropic", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = New(Options{Backend: "openrouter", APIKey: "test-key", SiteURL: "https://example.com", SiteName: "example"})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(429))
	assert.True(t, retryable(500))
	assert.True(t, retryable(503))
	assert.False(t, retryable(400))
	assert.False(t, retryable(401))
	assert.False(t, retryable(404))
}

func retryConfig(times int) mbc.Config {
	cfg := mbc.DefaultConfig()
	cfg.RetryTimes = times
	cfg.RetrySleepMs = 1
	cfg.TimeoutSeconds = 5
	return cfg
}

func TestCompleteWithRetry_SuccessPassesThrough(t *testing.T) {
	want := &mbc.ProviderResponse{Text: "ok"}

	got, err := completeWithRetry(context.Background(), "test", retryConfig(3),
		func(error) int { return 0 },
		func(ctx context.Context) (*mbc.ProviderResponse, error) { return want, nil },
	)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompleteWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0

	_, err := completeWithRetry(context.Background(), "test", retryConfig(3),
		func(error) int { return 401 },
		func(ctx context.Context) (*mbc.ProviderResponse, error) {
			calls++
			return nil, errors.New("unauthorized")
		},
	)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var provErr *mbc.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, 401, provErr.StatusCode)
}

func TestCompleteWithRetry_RetryableExhausts(t *testing.T) {
	calls := 0

	_, err := completeWithRetry(context.Background(), "test", retryConfig(3),
		func(error) int { return 429 },
		func(ctx context.Context) (*mbc.ProviderResponse, error) {
			calls++
			return nil, errors.New("rate limited")
		},
	)
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var provErr *mbc.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, 429, provErr.StatusCode)
	assert.Contains(t, provErr.Message, "3 attempts")
}

func TestCompleteWithRetry_RecoversMidSequence(t *testing.T) {
	calls := 0
	want := &mbc.ProviderResponse{Text: "recovered"}

	got, err := completeWithRetry(context.Background(), "test", retryConfig(3),
		func(error) int { return 500 },
		func(ctx context.Context) (*mbc.ProviderResponse, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("upstream error")
			}
			return want, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, want, got)
}

func TestCompleteWithRetry_ZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0

	_, err := completeWithRetry(context.Background(), "test", retryConfig(0),
		func(error) int { return 500 },
		func(ctx context.Context) (*mbc.ProviderResponse, error) {
			calls++
			return nil, errors.New("boom")
		},
	)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestMapAnthropicStopReason(t *testing.T) {
	assert.Equal(t, mbc.StopEndTurn, mapAnthropicStopReason("end_turn"))
	assert.Equal(t, mbc.StopToolUse, mapAnthropicStopReason("tool_use"))
	assert.Equal(t, mbc.StopMaxTokens, mapAnthropicStopReason("max_tokens"))
	assert.Equal(t, mbc.StopStopSequence, mapAnthropicStopReason("stop_sequence"))
	assert.Equal(t, mbc.StopPauseTurn, mapAnthropicStopReason("pause_turn"))
	assert.Equal(t, mbc.StopEndTurn, mapAnthropicStopReason("refusal"))
	assert.Equal(t, mbc.StopEndTurn, mapAnthropicStopReason(""))
}

func TestMapFinishReason(t *testing.T) {
	assert.Equal(t, mbc.StopEndTurn, mapFinishReason("stop"))
	assert.Equal(t, mbc.StopToolUse, mapFinishReason("tool_calls"))
	assert.Equal(t, mbc.StopMaxTokens, mapFinishReason("length"))
	assert.Equal(t, mbc.StopEndTurn, mapFinishReason("content_filter"))
}

func TestBlockContentString(t *testing.T) {
	assert.Equal(t, "plain", blockContentString("plain"))
	assert.JSONEq(t, `{"k":"v"}`, blockContentString(map[string]any{"k": "v"}))
	assert.Equal(t, "null", blockContentString(nil))
}

func TestBuildChatMessages_ToolResultsFanOut(t *testing.T) {
	messages := []mbc.Message{
		mbc.UserMessage("hello"),
		mbc.AssistantMessage([]mbc.ContentBlock{
			{Type: mbc.BlockToolUse, ID: "call_1", Name: "echo", Input: map[string]any{"v": "x"}},
			{Type: mbc.BlockToolUse, ID: "call_2", Name: "echo"},
		}),
		mbc.ToolResultMessage([]mbc.ToolResult{
			{ToolUseID: "call_1", Content: "one"},
			{ToolUseID: "call_2", Content: "two"},
		}),
	}

	out, err := buildChatMessages("system prompt", messages)
	require.NoError(t, err)

	// system + user + assistant + one tool message per result
	assert.Len(t, out, 5)
}

func TestBuildChatMessages_NoSystem(t *testing.T) {
	out, err := buildChatMessages("", []mbc.Message{mbc.UserMessage("hi")})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestBuildAnthropicParams_ZeroTemperatureSent(t *testing.T) {
	cfg := mbc.DefaultConfig()
	cfg.Temperature = 0

	params := buildAnthropicParams("", []mbc.Message{mbc.UserMessage("hi")}, nil, cfg)
	require.True(t, params.Temperature.Valid())
	assert.Equal(t, 0.0, params.Temperature.Value)
}

func TestBuildChatParams_ZeroTemperatureSent(t *testing.T) {
	cfg := mbc.DefaultConfig()
	cfg.Temperature = 0

	params, err := buildChatParams("", []mbc.Message{mbc.UserMessage("hi")}, nil, cfg)
	require.NoError(t, err)
	require.True(t, params.Temperature.Valid())
	assert.Equal(t, 0.0, params.Temperature.Value)
}

func TestBuildChatTools(t *testing.T) {
	defs := []mbc.ToolDefinition{{
		Name:        "echo",
		Description: "Echo input",
		InputSchema: map[string]any{"type": "object"},
	}}

	out := buildChatTools(defs)
	require.Len(t, out, 1)
	assert.Equal(t, "echo", out[0].Function.Name)
}
