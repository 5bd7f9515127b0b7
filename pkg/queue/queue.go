// Package queue provides lane-based background execution of session jobs
// with per-lane concurrency control.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/undergrace/mbc/pkg/mbc"
)

// DefaultLane receives jobs enqueued without an explicit lane.
const DefaultLane = "sessions"

// ToolResolver maps tool names from a session spec back to live tools.
type ToolResolver func(name string) (mbc.Tool, bool)

// jobRecord tracks one queued session job.
type jobRecord struct {
	job        mbc.SessionJob
	enqueuedAt time.Time
}

// laneState manages execution state for a single lane.
type laneState struct {
	concurrency int
	queue       []*jobRecord
	running     int
	mu          sync.Mutex
}

// Runner executes session jobs in background goroutines, serialized per
// lane. It implements mbc.Queue. Jobs on the same lane run at most
// `concurrency` at a time, in enqueue order.
type Runner struct {
	deps    mbc.Deps
	resolve ToolResolver
	logger  zerolog.Logger

	lanes  map[string]*laneState
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates a runner. Rebuilt sessions use deps for their
// collaborators and resolve for their toolkits.
func NewRunner(deps mbc.Deps, resolve ToolResolver, logger zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		deps:    deps,
		resolve: resolve,
		logger:  logger,
		lanes:   make(map[string]*laneState),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.initLane(DefaultLane, 1)
	return r
}

func (r *Runner) initLane(lane string, concurrency int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lanes[lane]; !exists {
		r.lanes[lane] = &laneState{concurrency: concurrency}
		r.logger.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane initialized")
	}
}

func (r *Runner) ensureLane(lane string) *laneState {
	r.mu.RLock()
	ls, exists := r.lanes[lane]
	r.mu.RUnlock()

	if !exists {
		r.initLane(lane, 1)
		r.mu.RLock()
		ls = r.lanes[lane]
		r.mu.RUnlock()
	}
	return ls
}

// EnqueueSession queues a job for background execution and returns
// immediately. An empty lane name targets the default lane.
func (r *Runner) EnqueueSession(ctx context.Context, lane string, job mbc.SessionJob) error {
	if lane == "" {
		lane = DefaultLane
	}

	ls := r.ensureLane(lane)

	ls.mu.Lock()
	ls.queue = append(ls.queue, &jobRecord{job: job, enqueuedAt: time.Now()})
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	r.logger.Debug().
		Str("lane", lane).
		Str("session_uuid", job.Spec.UUID).
		Int("queue_size", queueSize).
		Msg("Session job enqueued")

	go r.processLane(lane)
	return nil
}

// processLane starts queued jobs while the lane has capacity.
func (r *Runner) processLane(lane string) {
	r.mu.RLock()
	ls := r.lanes[lane]
	r.mu.RUnlock()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.running++

		r.wg.Add(1)
		go r.runJob(lane, record)
	}
}

// runJob rebuilds the session from its spec and drives it to a terminal
// status. A failed Start is already persisted by the session itself, so
// the runner only logs.
func (r *Runner) runJob(lane string, record *jobRecord) {
	defer r.wg.Done()

	start := time.Now()
	logger := r.logger.With().
		Str("lane", lane).
		Str("session_uuid", record.job.Spec.UUID).
		Logger()

	session, err := mbc.SessionFromSpec(record.job.Spec, r.deps, r.resolve)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to rebuild session from spec")
		r.finishJob(lane)
		return
	}

	if err := session.Start(r.ctx, record.job.InitialMessage); err != nil {
		logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Session job failed")
	} else {
		logger.Debug().
			Str("status", string(session.Status())).
			Dur("duration", time.Since(start)).
			Msg("Session job finished")
	}

	r.finishJob(lane)
}

func (r *Runner) finishJob(lane string) {
	r.mu.RLock()
	ls := r.lanes[lane]
	r.mu.RUnlock()

	ls.mu.Lock()
	ls.running--
	ls.mu.Unlock()

	go r.processLane(lane)
}

// SetConcurrency updates a lane's concurrency limit, kicking the lane in
// case the limit was raised.
func (r *Runner) SetConcurrency(lane string, concurrency int) {
	ls := r.ensureLane(lane)

	ls.mu.Lock()
	old := ls.concurrency
	ls.concurrency = concurrency
	ls.mu.Unlock()

	r.logger.Info().
		Str("lane", lane).
		Int("old", old).
		Int("new", concurrency).
		Msg("Lane concurrency updated")

	if concurrency > old {
		go r.processLane(lane)
	}
}

// QueueSize returns the number of jobs waiting on a lane.
func (r *Runner) QueueSize(lane string) int {
	r.mu.RLock()
	ls, exists := r.lanes[lane]
	r.mu.RUnlock()

	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// RunningCount returns the number of jobs executing on a lane.
func (r *Runner) RunningCount(lane string) int {
	r.mu.RLock()
	ls, exists := r.lanes[lane]
	r.mu.RUnlock()

	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// Stats returns queued/running/concurrency per lane.
func (r *Runner) Stats() map[string]map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]map[string]int, len(r.lanes))
	for lane, ls := range r.lanes {
		ls.mu.Lock()
		stats[lane] = map[string]int{
			"queued":      len(ls.queue),
			"running":     ls.running,
			"concurrency": ls.concurrency,
		}
		ls.mu.Unlock()
	}
	return stats
}

// Drain waits until every lane is idle or the timeout elapses. Returns
// true when fully drained.
func (r *Runner) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		idle := true

		r.mu.RLock()
		for _, ls := range r.lanes {
			ls.mu.Lock()
			if ls.running > 0 || len(ls.queue) > 0 {
				idle = false
			}
			ls.mu.Unlock()
		}
		r.mu.RUnlock()

		if idle {
			return true
		}
		if time.Now().After(deadline) {
			r.logger.Warn().Dur("timeout", timeout).Msg("Timeout draining session queue")
			return false
		}

		<-ticker.C
	}
}

// Close cancels in-flight sessions and waits for their goroutines.
func (r *Runner) Close() error {
	r.cancel()
	r.wg.Wait()
	return nil
}
