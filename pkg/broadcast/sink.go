package broadcast

import (
	"github.com/undergrace/mbc/pkg/mbc"
)

// SinkOptions selects which event kinds are forwarded to subscribers.
// The zero value forwards everything.
type SinkOptions struct {
	SkipSessionStarted   bool
	SkipTurnCompleted    bool
	SkipToolExecuted     bool
	SkipSessionCompleted bool
	SkipSessionFailed    bool
}

// Publisher fans frames out to subscribers. Satisfied by *Broadcaster.
type Publisher interface {
	Broadcast(msg EventMessage)
}

// Sink forwards session events to the broadcaster. It implements mbc.Sink.
type Sink struct {
	broadcaster Publisher
	opts        SinkOptions
}

// NewSink creates the event sink.
func NewSink(broadcaster Publisher, opts SinkOptions) *Sink {
	return &Sink{broadcaster: broadcaster, opts: opts}
}

// Emit translates a domain event into a wire frame and broadcasts it.
func (s *Sink) Emit(event mbc.Event) {
	switch e := event.(type) {
	case mbc.SessionStartedEvent:
		if s.opts.SkipSessionStarted {
			return
		}
		s.broadcaster.Broadcast(EventMessage{
			Event:       "session.started",
			SessionUUID: e.SessionUUID,
			Data:        map[string]any{"name": e.Name},
		})

	case mbc.TurnCompletedEvent:
		if s.opts.SkipTurnCompleted {
			return
		}
		s.broadcaster.Broadcast(EventMessage{
			Event:       "turn.completed",
			SessionUUID: e.SessionUUID,
			Data: map[string]any{
				"turn_number": e.TurnNumber,
				"type":        string(e.Type),
				"stop_reason": string(e.StopReason),
			},
		})

	case mbc.ToolExecutedEvent:
		if s.opts.SkipToolExecuted {
			return
		}
		s.broadcaster.Broadcast(EventMessage{
			Event:       "tool.executed",
			SessionUUID: e.SessionUUID,
			Data: map[string]any{
				"tool_name":   e.ToolCall.Name,
				"tool_use_id": e.ToolCall.ID,
				"is_error":    e.ToolResult.IsError,
				"duration_ms": e.DurationMs,
			},
		})

	case mbc.SessionCompletedEvent:
		if s.opts.SkipSessionCompleted {
			return
		}
		s.broadcaster.Broadcast(EventMessage{
			Event:       "session.completed",
			SessionUUID: e.SessionUUID,
			Data: map[string]any{
				"status":             string(e.Result.Status),
				"total_turns":        e.Result.TotalTurns,
				"estimated_cost_usd": e.Result.EstimatedCostUSD,
			},
		})

	case mbc.SessionFailedEvent:
		if s.opts.SkipSessionFailed {
			return
		}
		s.broadcaster.Broadcast(EventMessage{
			Event:       "session.failed",
			SessionUUID: e.SessionUUID,
			Data:        map[string]any{"error": e.Error},
		})
	}
}
