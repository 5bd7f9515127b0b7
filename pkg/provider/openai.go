package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/undergrace/mbc/pkg/mbc"
)

// openAICompatible is the shared core for every Chat Completions style
// backend. The canonical message format is block-based, so the adapter
// flattens tool_result blocks into tool-role messages and rebuilds tool
// calls from function-call payloads.
type openAICompatible struct {
	name   string
	client openai.Client
}

// OpenAI adapts the OpenAI Chat Completions API.
type OpenAI struct {
	openAICompatible
}

// NewOpenAI creates the adapter. The API key is required.
func NewOpenAI(apiKey, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, &mbc.ProviderError{Provider: "openai", Message: "API key is not configured"}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAI{openAICompatible{
		name:   "openai",
		client: openai.NewClient(opts...),
	}}, nil
}

// Name returns the backend identifier.
func (p *openAICompatible) Name() string { return p.name }

// Complete runs one turn against the Chat Completions API.
func (p *openAICompatible) Complete(ctx context.Context, system string, messages []mbc.Message, tools []mbc.ToolDefinition, cfg mbc.Config) (*mbc.ProviderResponse, error) {
	params, err := buildChatParams(system, messages, tools, cfg)
	if err != nil {
		return nil, &mbc.ProviderError{Provider: p.name, Message: "message conversion failed", Err: err}
	}

	return completeWithRetry(ctx, p.name, cfg, openAIStatus, func(ctx context.Context) (*mbc.ProviderResponse, error) {
		resp, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}
		return parseChatResponse(resp)
	})
}

func buildChatParams(system string, messages []mbc.Message, tools []mbc.ToolDefinition, cfg mbc.Config) (openai.ChatCompletionNewParams, error) {
	converted, err := buildChatMessages(system, messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(cfg.Model),
		Messages: converted,
		// Sent unconditionally: temperature 0 means greedy sampling, not
		// "use the backend default".
		Temperature: openai.Float(cfg.Temperature),
	}

	if cfg.MaxTokensPerTurn > 0 {
		params.MaxTokens = openai.Int(int64(cfg.MaxTokensPerTurn))
	}
	if len(tools) > 0 {
		params.Tools = buildChatTools(tools)
	}
	return params, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// buildChatMessages converts canonical block messages into the flat
// role-based Chat Completions shape. A user message carrying tool_result
// blocks fans out into one tool-role message per block.
func buildChatMessages(system string, messages []mbc.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := []openai.ChatCompletionMessageParamUnion{}

	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			converted, err := buildAssistantMessage(msg)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		default:
			if msg.LeadsWithToolResult() {
				for _, block := range msg.Content {
					if block.Type != mbc.BlockToolResult {
						continue
					}
					out = append(out, openai.ToolMessage(block.ToolUseID, blockContentString(block.Content)))
				}
				continue
			}
			out = append(out, openai.UserMessage(msg.TextContent()))
		}
	}

	return out, nil
}

func buildAssistantMessage(msg mbc.Message) (openai.ChatCompletionMessageParamUnion, error) {
	toolCalls := []openai.ChatCompletionMessageToolCall{}

	for _, block := range msg.Content {
		if block.Type != mbc.BlockToolUse {
			continue
		}

		args := "{}"
		if len(block.Input) > 0 {
			encoded, err := json.Marshal(block.Input)
			if err != nil {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("marshal tool arguments for %s: %w", block.Name, err)
			}
			args = string(encoded)
		}

		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
			ID:   block.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunction{
				Name:      block.Name,
				Arguments: args,
			},
		})
	}

	if len(toolCalls) == 0 {
		return openai.AssistantMessage(msg.TextContent()), nil
	}

	assistantMsg := openai.ChatCompletionMessage{
		Role:      "assistant",
		Content:   msg.TextContent(),
		ToolCalls: toolCalls,
	}
	return assistantMsg.ToParam(), nil
}

func buildChatTools(tools []mbc.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))

	for _, def := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.InputSchema),
			},
		})
	}

	return out
}

func parseChatResponse(resp *openai.ChatCompletion) (*mbc.ProviderResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := resp.Choices[0]

	content := []mbc.ContentBlock{}
	if choice.Message.Content != "" {
		content = append(content, mbc.TextBlock(choice.Message.Content))
	}

	toolCalls := []mbc.ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]any{}
		if tc.Function.Arguments != "" {
			// Malformed arguments degrade to empty args rather than failing
			// the whole turn.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		}

		toolCalls = append(toolCalls, mbc.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
		content = append(content, mbc.ContentBlock{
			Type:  mbc.BlockToolUse,
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	return &mbc.ProviderResponse{
		ID:           resp.ID,
		StopReason:   mapFinishReason(choice.FinishReason),
		Content:      content,
		ToolCalls:    toolCalls,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Text:         choice.Message.Content,
	}, nil
}

// mapFinishReason translates Chat Completions vocabulary into the
// canonical stop reasons. Unknown values map to end_turn.
func mapFinishReason(reason string) mbc.StopReason {
	switch reason {
	case "stop":
		return mbc.StopEndTurn
	case "tool_calls":
		return mbc.StopToolUse
	case "length":
		return mbc.StopMaxTokens
	default:
		return mbc.StopEndTurn
	}
}
