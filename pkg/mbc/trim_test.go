package mbc

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trimSession(limit, reserve int, messages []Message) *Session {
	cfg := DefaultConfig()
	cfg.ContextWindowLimit = limit
	cfg.ContextReserveTokens = reserve

	s := NewSession("trim", Deps{Logger: zerolog.Nop()})
	s.config = cfg
	s.messages = messages
	return s
}

func bulkMessages(n int, size int) []Message {
	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, UserMessage(strings.Repeat("x", size)))
	}
	return msgs
}

func TestTrim_NoopUnderLimit(t *testing.T) {
	msgs := bulkMessages(10, 10)
	s := trimSession(100000, 1000, msgs)

	s.trimMessagesIfNeeded()

	assert.Len(t, s.messages, 10)
}

func TestTrim_PreservesFirstAndTail(t *testing.T) {
	msgs := bulkMessages(20, 400)
	first := msgs[0]
	last := msgs[19]

	s := trimSession(500, 100, msgs)
	s.trimMessagesIfNeeded()

	// first + marker + 6-message tail
	require.Len(t, s.messages, 8)
	assert.Equal(t, first, s.messages[0])
	assert.Contains(t, s.messages[1].TextContent(), "13 previous turns were trimmed")
	assert.Equal(t, last, s.messages[7])
}

func TestTrim_WidensTailForToolResultPair(t *testing.T) {
	msgs := bulkMessages(20, 400)

	// Message 14 leads with a tool_result; a 6-message tail would cut the
	// pair apart, so the tail must widen to include message 13.
	msgs[14] = Message{Role: "user", Content: []ContentBlock{
		{Type: BlockToolResult, ToolUseID: "call_7", Content: "ok"},
	}}

	s := trimSession(500, 100, msgs)
	s.trimMessagesIfNeeded()

	// first + marker + 7-message tail starting at the tool_use message
	require.Len(t, s.messages, 9)
	assert.False(t, s.messages[2].LeadsWithToolResult())
	assert.True(t, s.messages[3].LeadsWithToolResult())
}

func TestTrim_ShortHistoryUntouched(t *testing.T) {
	msgs := bulkMessages(5, 4000)
	s := trimSession(500, 100, msgs)

	s.trimMessagesIfNeeded()

	// Over budget but nothing to drop: first + tail already covers all.
	assert.Len(t, s.messages, 5)
}

func TestEstimateTokens(t *testing.T) {
	blocks := []ContentBlock{TextBlock("hello")}
	encoded := `[{"type":"text","text":"hello"}]`

	assert.Equal(t, (len(encoded)+3)/4, estimateTokens(blocks))
	assert.Equal(t, 1, estimateTokens(nil)) // "null"
}
