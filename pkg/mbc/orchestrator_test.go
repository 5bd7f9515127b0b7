package mbc

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []SessionJob
	err  error
}

func (q *fakeQueue) EnqueueSession(ctx context.Context, queue string, job SessionJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestOrchestrator_RunSync(t *testing.T) {
	ok := &scriptProvider{responses: []*ProviderResponse{endTurnResponse("done A")}}
	bad := &scriptProvider{err: assert.AnError}

	deps := func(p Provider) Deps { return Deps{Provider: p, Logger: zerolog.Nop()} }

	o := NewOrchestrator("batch", nil, nil).
		Agent(NewSession("a", deps(ok)), "task a").
		Agent(NewSession("b", deps(bad)), "task b")

	result := o.RunSync(context.Background())

	require.Equal(t, 2, result.AgentCount())
	assert.False(t, result.Successful())

	all := result.All()
	assert.Equal(t, StatusCompleted, all[0].Status)
	assert.Equal(t, "done A", all[0].FinalMessage)

	// The failed unit yields a synthetic result instead of aborting.
	assert.Equal(t, StatusFailed, all[1].Status)
	assert.NotEmpty(t, all[1].Metadata["error"])

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, all[1].UUID, failures[0].UUID)
}

func TestOrchestrator_Dispatch(t *testing.T) {
	queue := &fakeQueue{}
	deps := Deps{Provider: &scriptProvider{}, Logger: zerolog.Nop()}

	s1 := NewSession("a", deps).Tools(echoTool{})
	s2 := NewSession("b", deps)

	o := NewOrchestrator("batch", nil, queue).
		Agent(s1, "task a").
		Agent(s2, "task b")

	require.NoError(t, o.Dispatch(context.Background(), "lane-1"))

	require.Len(t, queue.jobs, 2)
	assert.Equal(t, s1.UUID(), queue.jobs[0].Spec.UUID)
	assert.Equal(t, []string{"echo"}, queue.jobs[0].Spec.Tools)
	assert.Equal(t, "task b", queue.jobs[1].InitialMessage)
	assert.Equal(t, []string{s1.UUID(), s2.UUID()}, o.UUIDs())
}

func TestOrchestrator_DispatchWithoutQueue(t *testing.T) {
	o := NewOrchestrator("batch", nil, nil)
	assert.Error(t, o.Dispatch(context.Background(), ""))
}

func TestOrchestrator_ProgressAndResults(t *testing.T) {
	store := newMemStore()
	store.sessions["u1"] = SessionRecord{UUID: "u1", Status: StatusCompleted, Result: map[string]any{"message": "out1"}, TotalTurns: 2}
	store.sessions["u2"] = SessionRecord{UUID: "u2", Status: StatusFailed, Error: "boom"}
	store.sessions["u3"] = SessionRecord{UUID: "u3", Status: StatusRunning}

	o := NewOrchestrator("batch", store, nil)
	o.dispatchedUUIDs = []string{"u1", "u2", "u3"}

	progress, err := o.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 3, Completed: 1, Failed: 1, Running: 1}, progress)

	complete, err := o.IsComplete(context.Background())
	require.NoError(t, err)
	assert.False(t, complete)

	results, err := o.Results(context.Background())
	require.NoError(t, err)

	r1, ok := results.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "out1", r1.FinalMessage)
	assert.Equal(t, 2, r1.TotalTurns)

	r2, ok := results.Get("u2")
	require.True(t, ok)
	assert.Equal(t, "boom", r2.Metadata["error"])
}

func TestOrchestratorResult_MergedOutput(t *testing.T) {
	result := &OrchestratorResult{results: []SessionResult{
		{UUID: "a", Status: StatusCompleted, FinalMessage: "one", EstimatedCostUSD: 0.01},
		{UUID: "b", Status: StatusCompleted, FinalMessage: "two", EstimatedCostUSD: 0.02},
	}}

	merged := result.MergedOutput()
	require.Len(t, merged, 2)
	assert.Equal(t, "one", merged[0]["output"])
	assert.Equal(t, "b", merged[1]["agent_uuid"])

	assert.True(t, result.Successful())
	assert.InDelta(t, 0.03, result.TotalCost(), 1e-9)
}

func TestOrchestratorResult_EmptyNotSuccessful(t *testing.T) {
	result := &OrchestratorResult{}
	assert.False(t, result.Successful())
}
