package mbc

import (
	"context"
	"fmt"
)

// Queue is the background-execution collaborator for orchestrated fan-out.
// A job carries the serializable session spec plus its initial message; the
// handler on the other side rebuilds the session and calls Start.
type Queue interface {
	EnqueueSession(ctx context.Context, queue string, job SessionJob) error
}

// SessionJob is the unit of work handed to the queue.
type SessionJob struct {
	Spec           SessionSpec `json:"spec"`
	InitialMessage string      `json:"initial_message"`
}

// Orchestrator runs multiple sessions in parallel and collects results.
// Dispatch enqueues each unit as an independent background job; RunSync
// executes them synchronously in sequence on the caller instead.
type Orchestrator struct {
	name            string
	units           []orchestratorUnit
	dispatchedUUIDs []string
	queue           Queue
	store           Store
}

type orchestratorUnit struct {
	session *Session
	message string
}

// NewOrchestrator creates a named orchestrator. The store is used for
// progress queries and result reconstruction; the queue only for Dispatch.
func NewOrchestrator(name string, store Store, queue Queue) *Orchestrator {
	return &Orchestrator{name: name, store: store, queue: queue}
}

// Agent registers a parallel unit.
func (o *Orchestrator) Agent(session *Session, message string) *Orchestrator {
	o.units = append(o.units, orchestratorUnit{session: session, message: message})
	return o
}

// Dispatch enqueues every unit as a background job without blocking. The
// queue name may be empty for the default queue.
func (o *Orchestrator) Dispatch(ctx context.Context, queue string) error {
	if o.queue == nil {
		return fmt.Errorf("orchestrator %q: no queue configured", o.name)
	}

	for _, unit := range o.units {
		o.dispatchedUUIDs = append(o.dispatchedUUIDs, unit.session.UUID())

		job := SessionJob{
			Spec:           unit.session.Spec(),
			InitialMessage: unit.message,
		}
		if err := o.queue.EnqueueSession(ctx, queue, job); err != nil {
			return fmt.Errorf("orchestrator %q: enqueue session %s: %w", o.name, unit.session.UUID(), err)
		}
	}
	return nil
}

// RunSync executes all units synchronously in sequence on the caller. A
// unit whose Start fails yields a synthetic failed result instead of
// aborting the batch.
func (o *Orchestrator) RunSync(ctx context.Context) *OrchestratorResult {
	results := make([]SessionResult, 0, len(o.units))

	for _, unit := range o.units {
		o.dispatchedUUIDs = append(o.dispatchedUUIDs, unit.session.UUID())

		if err := unit.session.Start(ctx, unit.message); err != nil {
			results = append(results, SessionResult{
				UUID:     unit.session.UUID(),
				Status:   StatusFailed,
				Metadata: map[string]any{"error": err.Error()},
			})
			continue
		}

		results = append(results, unit.session.Result())
	}

	return &OrchestratorResult{name: o.name, results: results, uuids: o.dispatchedUUIDs}
}

// UUIDs returns the ids of all dispatched sessions.
func (o *Orchestrator) UUIDs() []string {
	uuids := make([]string, len(o.dispatchedUUIDs))
	copy(uuids, o.dispatchedUUIDs)
	return uuids
}

// Progress buckets the dispatched sessions by persisted status.
type Progress struct {
	Total     int
	Completed int
	Running   int
	Failed    int
	Pending   int
}

// Progress queries persisted state for the dispatched ids. Sessions that
// ended in max_turns count as completed for progress purposes.
func (o *Orchestrator) Progress(ctx context.Context) (Progress, error) {
	if len(o.dispatchedUUIDs) == 0 {
		return Progress{}, nil
	}
	if o.store == nil {
		return Progress{}, fmt.Errorf("orchestrator %q: no store configured", o.name)
	}

	records, err := o.store.GetSessions(ctx, o.dispatchedUUIDs)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{Total: len(o.dispatchedUUIDs)}
	for _, rec := range records {
		switch rec.Status {
		case StatusCompleted, StatusMaxTurns:
			p.Completed++
		case StatusRunning:
			p.Running++
		case StatusFailed:
			p.Failed++
		case StatusPending:
			p.Pending++
		}
	}
	return p, nil
}

// IsComplete reports whether every dispatched session has finished.
func (o *Orchestrator) IsComplete(ctx context.Context) (bool, error) {
	p, err := o.Progress(ctx)
	if err != nil {
		return false, err
	}
	return p.Completed+p.Failed == p.Total, nil
}

// Results reconstructs a SessionResult per dispatched id from persisted
// state. Only meaningful once IsComplete reports true.
func (o *Orchestrator) Results(ctx context.Context) (*OrchestratorResult, error) {
	if o.store == nil {
		return nil, fmt.Errorf("orchestrator %q: no store configured", o.name)
	}

	records, err := o.store.GetSessions(ctx, o.dispatchedUUIDs)
	if err != nil {
		return nil, err
	}

	results := make([]SessionResult, 0, len(records))
	for _, rec := range records {
		finalMessage := ""
		if rec.Result != nil {
			if msg, ok := rec.Result["message"].(string); ok {
				finalMessage = msg
			}
		}

		results = append(results, SessionResult{
			UUID:              rec.UUID,
			Status:            rec.Status,
			FinalMessage:      finalMessage,
			TotalTurns:        rec.TotalTurns,
			TotalInputTokens:  rec.TotalInputTokens,
			TotalOutputTokens: rec.TotalOutputTokens,
			EstimatedCostUSD:  rec.EstimatedCostUSD,
			Metadata: map[string]any{
				"name":  rec.Name,
				"model": rec.Model,
				"error": rec.Error,
			},
		})
	}

	return &OrchestratorResult{name: o.name, results: results, uuids: o.dispatchedUUIDs}, nil
}

// OrchestratorResult aggregates per-unit outcomes of a fan-out run.
type OrchestratorResult struct {
	name    string
	results []SessionResult
	uuids   []string
}

// Name returns the orchestrator's name.
func (r *OrchestratorResult) Name() string { return r.name }

// All returns every unit result.
func (r *OrchestratorResult) All() []SessionResult { return r.results }

// Get returns a unit's result by session uuid.
func (r *OrchestratorResult) Get(uuid string) (SessionResult, bool) {
	for _, result := range r.results {
		if result.UUID == uuid {
			return result, true
		}
	}
	return SessionResult{}, false
}

// Successful reports whether there is at least one result and every unit
// completed.
func (r *OrchestratorResult) Successful() bool {
	if len(r.results) == 0 {
		return false
	}
	for _, result := range r.results {
		if result.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Failures returns all failed unit results.
func (r *OrchestratorResult) Failures() []SessionResult {
	var failed []SessionResult
	for _, result := range r.results {
		if result.Status == StatusFailed {
			failed = append(failed, result)
		}
	}
	return failed
}

// MergedOutput combines every unit's final message into one structure,
// useful as input for a summarizer session.
func (r *OrchestratorResult) MergedOutput() []map[string]any {
	merged := make([]map[string]any, 0, len(r.results))
	for _, result := range r.results {
		merged = append(merged, map[string]any{
			"agent_uuid": result.UUID,
			"status":     string(result.Status),
			"output":     result.FinalMessage,
			"cost_usd":   result.EstimatedCostUSD,
		})
	}
	return merged
}

// TotalCost sums the estimated cost across units.
func (r *OrchestratorResult) TotalCost() float64 {
	total := 0.0
	for _, result := range r.results {
		total += result.EstimatedCostUSD
	}
	return total
}

// TotalTokens sums input and output tokens across units.
func (r *OrchestratorResult) TotalTokens() int {
	total := 0
	for _, result := range r.results {
		total += result.TotalInputTokens + result.TotalOutputTokens
	}
	return total
}

// AgentCount returns the number of units with results.
func (r *OrchestratorResult) AgentCount() int { return len(r.results) }
