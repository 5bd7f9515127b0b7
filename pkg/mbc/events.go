package mbc

// Event is a domain event emitted by the session run-loop. The core always
// emits events to its Sink; whether anything leaves the process is the
// sink's concern.
type Event interface {
	isEvent()
}

// SessionStartedEvent fires when a session is admitted and transitions to
// running.
type SessionStartedEvent struct {
	SessionUUID string
	Name        string
}

// TurnCompletedEvent fires after each persisted turn.
type TurnCompletedEvent struct {
	SessionUUID string
	TurnNumber  int
	Type        TurnType
	StopReason  StopReason
}

// ToolExecutedEvent fires once per tool call, after that call's result is
// known, carrying the wall-clock duration of the call.
type ToolExecutedEvent struct {
	SessionUUID string
	ToolCall    ToolCall
	ToolResult  ToolResult
	DurationMs  int64
}

// SessionCompletedEvent fires on any successful terminal exit (completed or
// max_turns).
type SessionCompletedEvent struct {
	SessionUUID string
	Result      SessionResult
}

// SessionFailedEvent fires when the run-loop raises.
type SessionFailedEvent struct {
	SessionUUID string
	Error       string
}

func (SessionStartedEvent) isEvent()   {}
func (TurnCompletedEvent) isEvent()    {}
func (ToolExecutedEvent) isEvent()     {}
func (SessionCompletedEvent) isEvent() {}
func (SessionFailedEvent) isEvent()    {}

// Sink receives domain events.
type Sink interface {
	Emit(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }
