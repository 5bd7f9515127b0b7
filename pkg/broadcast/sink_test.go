package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undergrace/mbc/pkg/mbc"
)

type capturePublisher struct {
	frames []EventMessage
}

func (p *capturePublisher) Broadcast(msg EventMessage) {
	p.frames = append(p.frames, msg)
}

func TestSink_MapsEvents(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewSink(pub, SinkOptions{})

	sink.Emit(mbc.SessionStartedEvent{SessionUUID: "u1", Name: "builder"})
	sink.Emit(mbc.TurnCompletedEvent{SessionUUID: "u1", TurnNumber: 2, Type: mbc.TurnAssistant, StopReason: mbc.StopToolUse})
	sink.Emit(mbc.ToolExecutedEvent{
		SessionUUID: "u1",
		ToolCall:    mbc.ToolCall{ID: "call_1", Name: "echo"},
		ToolResult:  mbc.ToolResult{ToolUseID: "call_1", IsError: true},
		DurationMs:  42,
	})
	sink.Emit(mbc.SessionCompletedEvent{SessionUUID: "u1", Result: mbc.SessionResult{Status: mbc.StatusCompleted, TotalTurns: 3}})
	sink.Emit(mbc.SessionFailedEvent{SessionUUID: "u1", Error: "boom"})

	require.Len(t, pub.frames, 5)

	assert.Equal(t, "session.started", pub.frames[0].Event)
	assert.Equal(t, "u1", pub.frames[0].SessionUUID)
	assert.Equal(t, map[string]any{"name": "builder"}, pub.frames[0].Data)

	assert.Equal(t, "turn.completed", pub.frames[1].Event)
	assert.Equal(t, map[string]any{
		"turn_number": 2,
		"type":        "assistant",
		"stop_reason": "tool_use",
	}, pub.frames[1].Data)

	assert.Equal(t, "tool.executed", pub.frames[2].Event)
	assert.Equal(t, map[string]any{
		"tool_name":   "echo",
		"tool_use_id": "call_1",
		"is_error":    true,
		"duration_ms": int64(42),
	}, pub.frames[2].Data)

	assert.Equal(t, "session.completed", pub.frames[3].Event)
	assert.Equal(t, "session.failed", pub.frames[4].Event)
	assert.Equal(t, map[string]any{"error": "boom"}, pub.frames[4].Data)
}

func TestSink_SkipOptions(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewSink(pub, SinkOptions{
		SkipTurnCompleted: true,
		SkipToolExecuted:  true,
	})

	sink.Emit(mbc.SessionStartedEvent{SessionUUID: "u1"})
	sink.Emit(mbc.TurnCompletedEvent{SessionUUID: "u1"})
	sink.Emit(mbc.ToolExecutedEvent{SessionUUID: "u1"})
	sink.Emit(mbc.SessionCompletedEvent{SessionUUID: "u1"})

	require.Len(t, pub.frames, 2)
	assert.Equal(t, "session.started", pub.frames[0].Event)
	assert.Equal(t, "session.completed", pub.frames[1].Event)
}

func TestRegistry_AddRemoveCount(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Count())

	r.Add(&Client{ID: "a"})
	r.Add(&Client{ID: "b"})
	assert.Equal(t, 2, r.Count())
	assert.Len(t, r.All(), 2)

	r.Remove("a")
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, "b", r.All()[0].ID)

	// Removing an unknown id is a no-op.
	r.Remove("ghost")
	assert.Equal(t, 1, r.Count())
}
