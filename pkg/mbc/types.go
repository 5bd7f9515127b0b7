package mbc

import "encoding/json"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusMaxTurns  SessionStatus = "max_turns"
)

// Terminal reports whether the status is final.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusMaxTurns
}

// StopReason is the provider-supplied signal for why generation ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopPauseTurn    StopReason = "pause_turn"
)

// TurnType classifies a persisted turn record.
type TurnType string

const (
	TurnUser       TurnType = "user"
	TurnAssistant  TurnType = "assistant"
	TurnToolResult TurnType = "tool_result"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the outcome of executing a single tool call.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name"`
	Content   any    `json:"content"`
	IsError   bool   `json:"is_error"`
}

// Block converts the result into a tool_result content block. Structured
// content is JSON-encoded so the block always carries a string payload.
func (r ToolResult) Block() ContentBlock {
	content, ok := r.Content.(string)
	if !ok {
		encoded, err := json.Marshal(r.Content)
		if err != nil {
			content = "unserializable tool result"
		} else {
			content = string(encoded)
		}
	}

	return ContentBlock{
		Type:      BlockToolResult,
		ToolUseID: r.ToolUseID,
		Content:   content,
		IsError:   r.IsError,
	}
}

// ToolDefinition describes a tool capability for the provider.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ProviderResponse is the canonical shape every provider adapter produces,
// regardless of the backend wire format.
type ProviderResponse struct {
	ID           string
	StopReason   StopReason
	Content      []ContentBlock
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	// Text is the concatenated text content of the turn, empty when the
	// turn produced no text blocks.
	Text string
}

// SessionResult is an immutable snapshot of a finished (or in-flight)
// session.
type SessionResult struct {
	UUID              string         `json:"uuid"`
	Status            SessionStatus  `json:"status"`
	FinalMessage      string         `json:"final_message"`
	TotalTurns        int            `json:"total_turns"`
	TotalInputTokens  int            `json:"total_input_tokens"`
	TotalOutputTokens int            `json:"total_output_tokens"`
	EstimatedCostUSD  float64        `json:"estimated_cost_usd"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
