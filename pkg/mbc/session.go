package mbc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/undergrace/mbc/pkg/pricing"
)

// Deps bundles the collaborators a session needs to run. Provider is
// required; everything else degrades gracefully when absent.
type Deps struct {
	Provider Provider
	Store    Store
	Sink     Sink
	Logger   zerolog.Logger

	// Middleware is the global chain, applied before any session-specific
	// middleware.
	Middleware []Middleware

	// MaxConcurrent caps sessions in running state. Zero or negative
	// disables the gate.
	MaxConcurrent int

	// ParallelTools enables the concurrent tool-execution path.
	ParallelTools bool
}

// Session drives one run of the multi-turn agent loop from initial message
// to terminal status. A Session is single-use: configure it, call Start
// once, then read Result.
type Session struct {
	uuid         string
	name         string
	systemPrompt string
	tools        []Tool
	context      map[string]any
	middleware   []Middleware
	config       Config

	deps    Deps
	toolkit *Toolkit
	agent   *Agent
	chain   []Middleware
	logger  zerolog.Logger

	messages          []Message
	status            SessionStatus
	turnCount         int
	totalInputTokens  int
	totalOutputTokens int
	finalMessage      string
	err               string
	startedAt         *time.Time
	completedAt       *time.Time

	record *SessionRecord
}

// NewSession creates a pending session. Configure it with the chainable
// setters before calling Start.
func NewSession(name string, deps Deps) *Session {
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}

	id := uuid.NewString()
	return &Session{
		uuid:   id,
		name:   name,
		deps:   deps,
		config: DefaultConfig(),
		status: StatusPending,
		logger: deps.Logger.With().Str("session_uuid", id).Logger(),
	}
}

// SystemPrompt sets the system prompt.
func (s *Session) SystemPrompt(prompt string) *Session {
	s.systemPrompt = prompt
	return s
}

// Tools sets the session's tool capabilities.
func (s *Session) Tools(tools ...Tool) *Session {
	s.tools = tools
	return s
}

// Context sets the structured initial context injected into the first
// message.
func (s *Session) Context(ctx map[string]any) *Session {
	s.context = ctx
	return s
}

// Middleware sets session-specific middleware, appended after the global
// chain.
func (s *Session) Middleware(mw ...Middleware) *Session {
	s.middleware = mw
	return s
}

// Config replaces the session configuration.
func (s *Session) Config(cfg Config) *Session {
	s.config = cfg
	return s
}

// UUID returns the session's opaque identity.
func (s *Session) UUID() string { return s.uuid }

// Name returns the display name.
func (s *Session) Name() string { return s.name }

// Status returns the current lifecycle status.
func (s *Session) Status() SessionStatus { return s.status }

// Messages returns the conversation history.
func (s *Session) Messages() []Message { return s.messages }

// Start runs the multi-turn loop with the given initial message. A fatal
// run-loop failure is raised only after the session state has been
// finalized to failed. Admission rejection with ConcurrencyLimitError and
// tool registration failure both leave the session pending, before
// anything is persisted.
func (s *Session) Start(ctx context.Context, initialMessage string) error {
	if err := s.guardConcurrency(ctx); err != nil {
		return err
	}

	if err := s.boot(); err != nil {
		return err
	}

	now := time.Now()
	s.startedAt = &now

	if err := s.persist(ctx); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.deps.Sink.Emit(SessionStartedEvent{SessionUUID: s.uuid, Name: s.name})

	s.messages = []Message{UserMessage(s.buildInitialMessage(initialMessage))}
	s.status = StatusRunning
	s.updateRecord(ctx)

	if err := s.runLoop(ctx); err != nil {
		s.status = StatusFailed
		s.err = err.Error()
		done := time.Now()
		s.completedAt = &done
		s.updateRecord(ctx)

		s.deps.Sink.Emit(SessionFailedEvent{SessionUUID: s.uuid, Error: err.Error()})

		return err
	}

	done := time.Now()
	s.completedAt = &done
	s.updateRecord(ctx)

	s.deps.Sink.Emit(SessionCompletedEvent{SessionUUID: s.uuid, Result: s.Result()})

	return nil
}

// runLoop is the core turn loop of the conversation protocol.
func (s *Session) runLoop(ctx context.Context) error {
	for s.turnCount < s.config.MaxTurns {
		s.turnCount++
		turnStart := time.Now()

		s.trimMessagesIfNeeded()

		resp, err := s.deps.Provider.Complete(ctx, s.systemPrompt, s.messages, s.toolkit.Definitions(), s.config)
		if err != nil {
			return err
		}

		resp, err = composeAfterResponse(s.chain)(resp)
		if err != nil {
			return err
		}

		s.totalInputTokens += resp.InputTokens
		s.totalOutputTokens += resp.OutputTokens

		s.messages = append(s.messages, AssistantMessage(resp.Content))

		durationMs := time.Since(turnStart).Milliseconds()

		s.persistTurn(ctx, &TurnRecord{
			SessionUUID:  s.uuid,
			TurnNumber:   s.turnCount,
			Type:         TurnAssistant,
			Content:      resp.Content,
			ToolCalls:    resp.ToolCalls,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			StopReason:   resp.StopReason,
			DurationMs:   durationMs,
		})

		s.deps.Sink.Emit(TurnCompletedEvent{
			SessionUUID: s.uuid,
			TurnNumber:  s.turnCount,
			Type:        TurnAssistant,
			StopReason:  resp.StopReason,
		})

		// Success terminals: the model finished, or it ran out of output
		// budget for the turn.
		if resp.StopReason == StopEndTurn || resp.StopReason == StopMaxTokens {
			s.status = StatusCompleted
			s.finalMessage = resp.Text
			return nil
		}

		if resp.StopReason == StopToolUse && len(resp.ToolCalls) > 0 {
			results := s.agent.ExecuteTools(ctx, resp.ToolCalls)

			results, err = composeAfterToolExecution(s.chain)(results)
			if err != nil {
				return err
			}

			msg := ToolResultMessage(results)
			s.messages = append(s.messages, msg)

			s.persistTurn(ctx, &TurnRecord{
				SessionUUID: s.uuid,
				TurnNumber:  s.turnCount,
				Type:        TurnToolResult,
				Content:     msg.Content,
				ToolResults: results,
			})
		}

		// Any other stop reason (stop_sequence, pause_turn, or tool_use
		// with no calls) falls through: the next call is made against
		// unchanged history, relying on the provider to resume.
	}

	s.status = StatusMaxTurns
	return nil
}

// estimateTokens approximates a token count from the serialized byte
// length, at roughly 4 bytes per token.
func estimateTokens(content []ContentBlock) int {
	encoded, err := json.Marshal(content)
	if err != nil {
		return 0
	}
	return (len(encoded) + 3) / 4
}

// trimMessagesIfNeeded compacts the history when the estimated token usage
// exceeds the context budget. The first message and the most recent tail
// are preserved verbatim; the dropped middle is replaced by a single
// marker message. The tail boundary is pushed back one message when it
// would separate a tool_result from its tool_use.
func (s *Session) trimMessagesIfNeeded() {
	limit := s.config.ContextWindowLimit - s.config.ContextReserveTokens

	total := (len(s.systemPrompt) + 3) / 4
	for _, msg := range s.messages {
		total += estimateTokens(msg.Content)
	}

	if total <= limit {
		return
	}

	preserveTail := 6
	if preserveTail > len(s.messages) {
		preserveTail = len(s.messages)
	}

	// A tool_result at the tail boundary must keep its tool_use message;
	// widen the tail to include the pair.
	for preserveTail < len(s.messages)-1 && s.messages[len(s.messages)-preserveTail].LeadsWithToolResult() {
		preserveTail++
	}

	if len(s.messages) <= 1+preserveTail {
		return
	}

	dropped := len(s.messages) - 1 - preserveTail
	marker := UserMessage(fmt.Sprintf(
		"[System: %d previous turns were trimmed to fit context window. "+
			"The conversation started with the context above and the most recent turns follow.]",
		dropped,
	))

	trimmed := make([]Message, 0, 2+preserveTail)
	trimmed = append(trimmed, s.messages[0])
	trimmed = append(trimmed, marker)
	trimmed = append(trimmed, s.messages[len(s.messages)-preserveTail:]...)
	s.messages = trimmed

	s.logger.Info().
		Int("dropped", dropped).
		Int("estimated_tokens", total).
		Int("limit", limit).
		Msg("Trimmed conversation history")
}

// guardConcurrency is a soft admission gate: it checks the persisted count
// of running sessions without reserving a slot, so two sessions racing
// through Start may transiently overshoot the ceiling.
func (s *Session) guardConcurrency(ctx context.Context) error {
	if s.deps.MaxConcurrent <= 0 || s.deps.Store == nil {
		return nil
	}

	running, err := s.deps.Store.CountRunning(ctx)
	if err != nil {
		return fmt.Errorf("count running sessions: %w", err)
	}

	if running >= s.deps.MaxConcurrent {
		return &ConcurrencyLimitError{Running: running, Limit: s.deps.MaxConcurrent}
	}
	return nil
}

func (s *Session) boot() error {
	s.logger = s.deps.Logger.With().Str("session_uuid", s.uuid).Logger()

	s.toolkit = NewToolkit()
	if err := s.toolkit.Register(s.tools...); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	s.agent = NewAgent(s.toolkit, s.uuid, s.deps.ParallelTools, s.deps.Sink, s.logger)

	s.chain = make([]Middleware, 0, len(s.deps.Middleware)+len(s.middleware))
	s.chain = append(s.chain, s.deps.Middleware...)
	s.chain = append(s.chain, s.middleware...)
	return nil
}

// buildInitialMessage appends the pretty-printed initial context to the
// caller's message when context was supplied.
func (s *Session) buildInitialMessage(message string) string {
	if len(s.context) == 0 {
		return message
	}

	contextJSON, err := json.MarshalIndent(s.context, "", "    ")
	if err != nil {
		return message
	}

	return fmt.Sprintf("%s\n\n---\nInitial context:\n```json\n%s\n```", message, contextJSON)
}

func (s *Session) persist(ctx context.Context) error {
	if s.deps.Store == nil {
		return nil
	}

	s.record = &SessionRecord{
		UUID:         s.uuid,
		Name:         s.name,
		Status:       s.status,
		Model:        s.config.Model,
		SystemPrompt: s.systemPrompt,
		Context:      s.context,
		Config:       s.config.ToMap(),
		StartedAt:    s.startedAt,
		CreatedAt:    time.Now(),
	}
	return s.deps.Store.CreateSession(ctx, s.record)
}

func (s *Session) updateRecord(ctx context.Context) {
	if s.record == nil || s.deps.Store == nil {
		return
	}

	s.record.Status = s.status
	s.record.TotalTurns = s.turnCount
	s.record.TotalInputTokens = s.totalInputTokens
	s.record.TotalOutputTokens = s.totalOutputTokens
	s.record.EstimatedCostUSD = s.estimateCost()
	s.record.Error = s.err
	s.record.StartedAt = s.startedAt
	s.record.CompletedAt = s.completedAt
	if s.finalMessage != "" {
		s.record.Result = map[string]any{"message": s.finalMessage}
	}

	if err := s.deps.Store.UpdateSession(ctx, s.record); err != nil {
		s.logger.Error().Err(err).Msg("Failed to update session record")
	}
}

func (s *Session) persistTurn(ctx context.Context, rec *TurnRecord) {
	if s.record == nil || s.deps.Store == nil {
		return
	}

	rec.CreatedAt = time.Now()
	if err := s.deps.Store.CreateTurn(ctx, rec); err != nil {
		s.logger.Error().Err(err).Int("turn", rec.TurnNumber).Msg("Failed to persist turn")
	}
}

func (s *Session) estimateCost() float64 {
	return pricing.Estimate(s.config.Model, s.totalInputTokens, s.totalOutputTokens)
}

// Result returns an immutable snapshot of the session.
func (s *Session) Result() SessionResult {
	return SessionResult{
		UUID:              s.uuid,
		Status:            s.status,
		FinalMessage:      s.finalMessage,
		TotalTurns:        s.turnCount,
		TotalInputTokens:  s.totalInputTokens,
		TotalOutputTokens: s.totalOutputTokens,
		EstimatedCostUSD:  s.estimateCost(),
		Metadata:          map[string]any{},
	}
}

// Spec returns the serializable form of the session for dispatch across a
// job boundary. Tools and middleware travel by name; the job handler
// rebuilds them from its own registries.
func (s *Session) Spec() SessionSpec {
	toolNames := make([]string, 0, len(s.tools))
	for _, tool := range s.tools {
		toolNames = append(toolNames, tool.Definition().Name)
	}

	return SessionSpec{
		UUID:         s.uuid,
		Name:         s.name,
		SystemPrompt: s.systemPrompt,
		Tools:        toolNames,
		Context:      s.context,
		Config:       s.config.ToMap(),
	}
}

// SessionSpec is the flat, serializable description of a session.
type SessionSpec struct {
	UUID         string         `json:"uuid"`
	Name         string         `json:"name"`
	SystemPrompt string         `json:"system_prompt"`
	Tools        []string       `json:"tools"`
	Context      map[string]any `json:"context,omitempty"`
	Config       map[string]any `json:"config"`
}

// SessionFromSpec rebuilds a session on the far side of a job boundary.
// The session keeps the spec's uuid so persisted state lines up with the
// dispatching orchestrator. Tools are resolved by name through the given
// lookup; an unresolvable tool is an error rather than a silently smaller
// toolkit.
func SessionFromSpec(spec SessionSpec, deps Deps, resolveTool func(name string) (Tool, bool)) (*Session, error) {
	s := NewSession(spec.Name, deps)
	if spec.UUID != "" {
		s.uuid = spec.UUID
		s.logger = deps.Logger.With().Str("session_uuid", s.uuid).Logger()
	}

	s.systemPrompt = spec.SystemPrompt
	s.context = spec.Context
	s.config = ConfigFromMap(spec.Config)

	for _, name := range spec.Tools {
		tool, ok := resolveTool(name)
		if !ok {
			return nil, fmt.Errorf("session %s: unknown tool %q in spec", spec.UUID, name)
		}
		s.tools = append(s.tools, tool)
	}

	return s, nil
}
