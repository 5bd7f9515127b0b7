// Package middleware provides the built-in turn interceptors: structured
// turn logging, cumulative cost tracking, a hard turn ceiling, and visual
// feedback injection for rendered output.
package middleware

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/undergrace/mbc/pkg/mbc"
	"github.com/undergrace/mbc/pkg/pricing"
)

// LogTurns logs every provider response and tool execution.
type LogTurns struct {
	logger zerolog.Logger

	// LogResponseText also logs the full text of each turn at debug level.
	LogResponseText bool
}

// NewLogTurns creates the logging middleware.
func NewLogTurns(logger zerolog.Logger) *LogTurns {
	return &LogTurns{logger: logger}
}

func (m *LogTurns) AfterResponse(resp *mbc.ProviderResponse, next mbc.ResponseNext) (*mbc.ProviderResponse, error) {
	m.logger.Info().
		Str("response_id", resp.ID).
		Str("stop_reason", string(resp.StopReason)).
		Int("tool_calls", len(resp.ToolCalls)).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Bool("has_text", resp.Text != "").
		Msg("Turn response")

	if m.LogResponseText && resp.Text != "" {
		m.logger.Debug().Str("text", resp.Text).Msg("Turn response text")
	}

	return next(resp)
}

func (m *LogTurns) AfterToolExecution(results []mbc.ToolResult, next mbc.ToolResultsNext) ([]mbc.ToolResult, error) {
	for _, result := range results {
		m.logger.Info().
			Str("tool_name", result.ToolName).
			Str("tool_use_id", result.ToolUseID).
			Bool("is_error", result.IsError).
			Msg("Tool executed")
	}
	return next(results)
}

// CostTracker accumulates token usage across turns and logs the running
// cost estimate. One tracker belongs to one session; sharing it across
// sessions conflates their totals.
type CostTracker struct {
	logger zerolog.Logger
	model  string

	cumulativeInput  int
	cumulativeOutput int
}

// NewCostTracker creates a tracker priced against the given model.
func NewCostTracker(model string, logger zerolog.Logger) *CostTracker {
	if model == "" {
		model = mbc.DefaultModel
	}
	return &CostTracker{logger: logger, model: model}
}

// Cumulative returns the tokens accumulated so far.
func (m *CostTracker) Cumulative() (input, output int) {
	return m.cumulativeInput, m.cumulativeOutput
}

// Cost returns the current cost estimate in USD.
func (m *CostTracker) Cost() float64 {
	return pricing.Estimate(m.model, m.cumulativeInput, m.cumulativeOutput)
}

func (m *CostTracker) AfterResponse(resp *mbc.ProviderResponse, next mbc.ResponseNext) (*mbc.ProviderResponse, error) {
	m.cumulativeInput += resp.InputTokens
	m.cumulativeOutput += resp.OutputTokens

	m.logger.Info().
		Str("model", m.model).
		Int("turn_input_tokens", resp.InputTokens).
		Int("turn_output_tokens", resp.OutputTokens).
		Int("cumulative_input", m.cumulativeInput).
		Int("cumulative_output", m.cumulativeOutput).
		Float64("estimated_cost_usd", m.Cost()).
		Msg("Cost tracker")

	return next(resp)
}

func (m *CostTracker) AfterToolExecution(results []mbc.ToolResult, next mbc.ToolResultsNext) ([]mbc.ToolResult, error) {
	return next(results)
}

// RateLimiter fails the session once it has processed more than maxTurns
// responses. It is a hard backstop under the session's own MaxTurns,
// useful when the config is trusted less than the middleware chain.
type RateLimiter struct {
	maxTurns       int
	turnsProcessed int
}

// NewRateLimiter creates a limiter with the given ceiling.
func NewRateLimiter(maxTurns int) *RateLimiter {
	return &RateLimiter{maxTurns: maxTurns}
}

func (m *RateLimiter) AfterResponse(resp *mbc.ProviderResponse, next mbc.ResponseNext) (*mbc.ProviderResponse, error) {
	m.turnsProcessed++
	if m.turnsProcessed > m.maxTurns {
		return nil, fmt.Errorf("rate limiter: exceeded maximum of %d turns", m.maxTurns)
	}
	return next(resp)
}

func (m *RateLimiter) AfterToolExecution(results []mbc.ToolResult, next mbc.ToolResultsNext) ([]mbc.ToolResult, error) {
	return next(results)
}
