package mbc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Agent executes batches of tool calls against a toolkit. Each call is
// isolated: resolution failures, tool errors and panics all become
// error-flagged results so the conversation can continue.
type Agent struct {
	toolkit     *Toolkit
	sessionUUID string
	parallel    bool
	sink        Sink
	logger      zerolog.Logger
}

// NewAgent creates an agent bound to a toolkit. The sink receives one
// ToolExecutedEvent per call.
func NewAgent(toolkit *Toolkit, sessionUUID string, parallel bool, sink Sink, logger zerolog.Logger) *Agent {
	if sink == nil {
		sink = NopSink{}
	}
	return &Agent{
		toolkit:     toolkit,
		sessionUUID: sessionUUID,
		parallel:    parallel,
		sink:        sink,
		logger:      logger,
	}
}

// ExecuteTools runs every call and returns results in submission order,
// regardless of execution strategy. A single call always takes the
// sequential path; larger batches run concurrently when parallel mode is
// enabled.
func (a *Agent) ExecuteTools(ctx context.Context, calls []ToolCall) []ToolResult {
	if a.parallel && len(calls) > 1 {
		return a.executeParallel(ctx, calls)
	}
	return a.executeSequential(ctx, calls)
}

func (a *Agent) executeSequential(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, a.executeSingle(ctx, call))
	}
	return results
}

// executeParallel fans the batch out across goroutines and re-joins results
// in submission order. Each call gets its own panic isolation; events are
// emitted as each call finishes, not at join time.
func (a *Agent) executeParallel(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			results[i] = a.executeSingle(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (a *Agent) executeSingle(ctx context.Context, call ToolCall) (result ToolResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("tool", call.Name).
				Str("session_uuid", a.sessionUUID).
				Interface("panic", r).
				Msg("Tool execution panicked")

			result = a.errorResult(call)
		}

		a.sink.Emit(ToolExecutedEvent{
			SessionUUID: a.sessionUUID,
			ToolCall:    call,
			ToolResult:  result,
			DurationMs:  time.Since(start).Milliseconds(),
		})
	}()

	tool, err := a.toolkit.Resolve(call.Name)
	if err != nil {
		a.logger.Warn().
			Str("tool", call.Name).
			Str("session_uuid", a.sessionUUID).
			Msg("Unknown tool requested")

		return ToolResult{
			ToolUseID: call.ID,
			ToolName:  call.Name,
			Content:   err.Error(),
			IsError:   true,
		}
	}

	if err := a.toolkit.ValidateInput(call.Name, call.Input); err != nil {
		return ToolResult{
			ToolUseID: call.ID,
			ToolName:  call.Name,
			Content:   err.Error(),
			IsError:   true,
		}
	}

	output, err := tool.Execute(ctx, call.Input)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("tool", call.Name).
			Str("session_uuid", a.sessionUUID).
			Msg("Tool execution failed")

		return a.errorResult(call)
	}

	return ToolResult{
		ToolUseID: call.ID,
		ToolName:  call.Name,
		Content:   output,
		IsError:   false,
	}
}

// errorResult builds the safe diagnostic sent back to the model. Details
// stay in the logs.
func (a *Agent) errorResult(call ToolCall) ToolResult {
	return ToolResult{
		ToolUseID: call.ID,
		ToolName:  call.Name,
		Content:   fmt.Sprintf("Tool '%s' execution failed. Check logs for details.", call.Name),
		IsError:   true,
	}
}
