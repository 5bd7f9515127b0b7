package mbc

import "fmt"

// ProviderError is a fatal provider failure: the HTTP call errored after
// retries were exhausted, or credentials are missing. It fails the session.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UnknownToolError means the model requested a tool that is not registered.
// It is never fatal; the agent converts it into an error ToolResult.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q is not registered in the toolkit", e.Name)
}

// ConcurrencyLimitError is returned by Start when the running-session
// ceiling is reached. The session never leaves pending.
type ConcurrencyLimitError struct {
	Running int
	Limit   int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("concurrency limit reached: %d/%d sessions are currently running", e.Running, e.Limit)
}
