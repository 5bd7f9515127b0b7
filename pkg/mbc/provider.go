package mbc

import "context"

// Provider is the chat-completion backend. Adapters normalize their wire
// format into the canonical ProviderResponse.
type Provider interface {
	// Complete runs one turn against the backend.
	Complete(ctx context.Context, system string, messages []Message, tools []ToolDefinition, cfg Config) (*ProviderResponse, error)

	// Name identifies the backend for logging and error reporting.
	Name() string
}
