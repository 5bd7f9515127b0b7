package mbc

import (
	"context"
	"time"
)

// SessionRecord is the persisted shape of a session.
type SessionRecord struct {
	UUID              string
	Name              string
	Status            SessionStatus
	Model             string
	SystemPrompt      string
	Context           map[string]any
	Config            map[string]any
	TotalTurns        int
	TotalInputTokens  int
	TotalOutputTokens int
	EstimatedCostUSD  float64
	Result            map[string]any
	Error             string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
}

// TurnRecord is the persisted shape of a single turn.
type TurnRecord struct {
	SessionUUID  string
	TurnNumber   int
	Type         TurnType
	Content      []ContentBlock
	ToolCalls    []ToolCall
	ToolResults  []ToolResult
	InputTokens  int
	OutputTokens int
	StopReason   StopReason
	DurationMs   int64
	CreatedAt    time.Time
}

// Store is the persistence collaborator. The core only writes through it;
// read paths exist for the composition layer (orchestrator progress) and
// the admission gate.
type Store interface {
	CreateSession(ctx context.Context, rec *SessionRecord) error
	UpdateSession(ctx context.Context, rec *SessionRecord) error
	CreateTurn(ctx context.Context, rec *TurnRecord) error
	CountRunning(ctx context.Context) (int, error)
	GetSessions(ctx context.Context, uuids []string) ([]SessionRecord, error)
}
