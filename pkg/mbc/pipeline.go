package mbc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Pipeline chains sessions in sequence: each stage receives a JSON summary
// of every previous stage's result appended to its initial message.
type Pipeline struct {
	stages []pipelineStage
}

type pipelineStage struct {
	session *Session
	message string
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Pipe appends a stage: a pre-configured session and its initial message.
func (p *Pipeline) Pipe(session *Session, message string) *Pipeline {
	p.stages = append(p.stages, pipelineStage{session: session, message: message})
	return p
}

// Run executes the stages strictly in order. A stage failure propagates
// after the failed stage's state is finalized; completed stage results up
// to that point are lost to the caller only in the error path.
func (p *Pipeline) Run(ctx context.Context) (*PipelineResult, error) {
	results := make([]SessionResult, 0, len(p.stages))
	accumulated := make([]map[string]any, 0, len(p.stages))

	for i, stage := range p.stages {
		message := stage.message

		if len(accumulated) > 0 {
			previous, err := json.MarshalIndent(accumulated, "", "    ")
			if err != nil {
				return nil, fmt.Errorf("pipeline stage %d: encode previous results: %w", i+1, err)
			}
			message = fmt.Sprintf("%s\n\n---\nResults from previous stages:\n```json\n%s\n```", message, previous)
		}

		if err := stage.session.Start(ctx, message); err != nil {
			return nil, fmt.Errorf("pipeline stage %d: %w", i+1, err)
		}

		result := stage.session.Result()
		results = append(results, result)

		accumulated = append(accumulated, map[string]any{
			"agent":       result.UUID,
			"stage":       i + 1,
			"status":      string(result.Status),
			"output":      result.FinalMessage,
			"tokens_used": result.TotalInputTokens + result.TotalOutputTokens,
			"cost_usd":    result.EstimatedCostUSD,
		})
	}

	return &PipelineResult{results: results}, nil
}

// PipelineResult exposes the per-stage outcomes of a pipeline run.
type PipelineResult struct {
	results []SessionResult
}

// All returns every stage result in order.
func (r *PipelineResult) All() []SessionResult { return r.results }

// Stage returns the result of a stage by zero-based index, or false when
// out of range.
func (r *PipelineResult) Stage(index int) (SessionResult, bool) {
	if index < 0 || index >= len(r.results) {
		return SessionResult{}, false
	}
	return r.results[index], true
}

// Final returns the last stage's result.
func (r *PipelineResult) Final() SessionResult {
	return r.results[len(r.results)-1]
}

// Successful reports whether every stage completed.
func (r *PipelineResult) Successful() bool {
	for _, result := range r.results {
		if result.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failed stage, if any.
func (r *PipelineResult) FirstFailure() (SessionResult, bool) {
	for _, result := range r.results {
		if result.Status == StatusFailed {
			return result, true
		}
	}
	return SessionResult{}, false
}

// TotalCost sums the estimated cost across stages.
func (r *PipelineResult) TotalCost() float64 {
	total := 0.0
	for _, result := range r.results {
		total += result.EstimatedCostUSD
	}
	return total
}

// TotalTokens sums input and output tokens across stages.
func (r *PipelineResult) TotalTokens() int {
	total := 0
	for _, result := range r.results {
		total += result.TotalInputTokens + result.TotalOutputTokens
	}
	return total
}

// StageCount returns the number of executed stages.
func (r *PipelineResult) StageCount() int { return len(r.results) }
