package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/undergrace/mbc/pkg/mbc"
)

// Anthropic adapts the Anthropic Messages API. The canonical message
// format already mirrors this backend, so serialization is mostly direct.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates the adapter. The API key is required; baseURL may
// be empty for the public endpoint.
func NewAnthropic(apiKey, baseURL string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, &mbc.ProviderError{Provider: "anthropic", Message: "API key is not configured"}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // retry policy lives in completeWithRetry
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Anthropic{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the backend identifier.
func (p *Anthropic) Name() string { return "anthropic" }

// Complete runs one turn against the Messages API.
func (p *Anthropic) Complete(ctx context.Context, system string, messages []mbc.Message, tools []mbc.ToolDefinition, cfg mbc.Config) (*mbc.ProviderResponse, error) {
	params := buildAnthropicParams(system, messages, tools, cfg)

	return completeWithRetry(ctx, p.Name(), cfg, anthropicStatus, func(ctx context.Context) (*mbc.ProviderResponse, error) {
		resp, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, err
		}
		return parseAnthropicResponse(resp), nil
	})
}

func buildAnthropicParams(system string, messages []mbc.Message, tools []mbc.ToolDefinition, cfg mbc.Config) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: int64(cfg.MaxTokensPerTurn),
		Messages:  buildAnthropicMessages(messages),
		// Sent unconditionally: temperature 0 means greedy sampling, not
		// "use the backend default".
		Temperature: anthropic.Float(cfg.Temperature),
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = buildAnthropicTools(tools)
	}
	return params
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func buildAnthropicMessages(messages []mbc.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))

		for _, block := range msg.Content {
			switch block.Type {
			case mbc.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			case mbc.BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
			case mbc.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolUseID, blockContentString(block.Content), block.IsError))
			case mbc.BlockImage:
				if block.Source != nil {
					blocks = append(blocks, anthropic.NewImageBlockBase64(block.Source.MediaType, block.Source.Data))
				}
			}
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}

		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	return out
}

func buildAnthropicTools(tools []mbc.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, def := range tools {
		tool := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
		}

		if props, ok := def.InputSchema["properties"]; ok {
			tool.InputSchema = anthropic.ToolInputSchemaParam{Properties: props}
		}
		if required, ok := def.InputSchema["required"].([]string); ok {
			tool.InputSchema.Required = required
		} else if raw, ok := def.InputSchema["required"].([]any); ok {
			names := make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					names = append(names, s)
				}
			}
			tool.InputSchema.Required = names
		}

		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}

	return out
}

func parseAnthropicResponse(resp *anthropic.Message) *mbc.ProviderResponse {
	content := make([]mbc.ContentBlock, 0, len(resp.Content))
	toolCalls := []mbc.ToolCall{}
	textParts := []string{}

	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			textParts = append(textParts, b.Text)
			content = append(content, mbc.TextBlock(b.Text))
		case anthropic.ToolUseBlock:
			input := map[string]any{}
			if raw := b.JSON.Input.Raw(); raw != "" {
				// Undecodable input degrades to empty args; the tool's own
				// schema validation reports the problem to the model.
				_ = json.Unmarshal([]byte(raw), &input)
			}

			call := mbc.ToolCall{ID: b.ID, Name: b.Name, Input: input}
			toolCalls = append(toolCalls, call)
			content = append(content, mbc.ContentBlock{
				Type:  mbc.BlockToolUse,
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
	}

	return &mbc.ProviderResponse{
		ID:           resp.ID,
		StopReason:   mapAnthropicStopReason(string(resp.StopReason)),
		Content:      content,
		ToolCalls:    toolCalls,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Text:         strings.Join(textParts, "\n"),
	}
}

// mapAnthropicStopReason is fail-open: unknown vocabulary never aborts a
// turn.
func mapAnthropicStopReason(reason string) mbc.StopReason {
	switch reason {
	case "end_turn":
		return mbc.StopEndTurn
	case "tool_use":
		return mbc.StopToolUse
	case "max_tokens":
		return mbc.StopMaxTokens
	case "stop_sequence":
		return mbc.StopStopSequence
	case "pause_turn":
		return mbc.StopPauseTurn
	default:
		return mbc.StopEndTurn
	}
}

func blockContentString(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(encoded)
}
