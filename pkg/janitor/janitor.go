// Package janitor runs scheduled maintenance against the session store:
// flagging abandoned running sessions as failed and pruning old finished
// ones.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Store is the maintenance surface of the session store.
type Store interface {
	MarkZombies(ctx context.Context, maxAge time.Duration) (int, error)
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

// Config tunes the maintenance schedules and thresholds.
type Config struct {
	// SweepSchedule is the cron expression for the zombie sweep.
	// Defaults to every 10 minutes.
	SweepSchedule string

	// PruneSchedule is the cron expression for pruning finished sessions.
	// Defaults to daily at 03:00.
	PruneSchedule string

	// ZombieMaxAge is how long a running session may go without updates
	// before it is marked failed. Defaults to 1 hour.
	ZombieMaxAge time.Duration

	// RetainFinished is how long finished sessions are kept.
	// Defaults to 30 days.
	RetainFinished time.Duration
}

func (c *Config) applyDefaults() {
	if c.SweepSchedule == "" {
		c.SweepSchedule = "*/10 * * * *"
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "0 3 * * *"
	}
	if c.ZombieMaxAge <= 0 {
		c.ZombieMaxAge = time.Hour
	}
	if c.RetainFinished <= 0 {
		c.RetainFinished = 30 * 24 * time.Hour
	}
}

// Janitor owns the cron scheduler for store maintenance.
type Janitor struct {
	store  Store
	cfg    Config
	cron   *cron.Cron
	logger zerolog.Logger
}

// New creates a janitor. Call Start to begin scheduling.
func New(store Store, cfg Config, logger zerolog.Logger) *Janitor {
	cfg.applyDefaults()
	return &Janitor{
		store:  store,
		cfg:    cfg,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.cfg.SweepSchedule, j.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.cfg.SweepSchedule, err)
	}
	if _, err := j.cron.AddFunc(j.cfg.PruneSchedule, j.prune); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", j.cfg.PruneSchedule, err)
	}

	j.cron.Start()
	j.logger.Info().
		Str("sweep", j.cfg.SweepSchedule).
		Str("prune", j.cfg.PruneSchedule).
		Msg("Janitor started")
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info().Msg("Janitor stopped")
}

// Sweep runs the zombie sweep once, outside the schedule.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	return j.store.MarkZombies(ctx, j.cfg.ZombieMaxAge)
}

// Prune runs the prune once, outside the schedule.
func (j *Janitor) Prune(ctx context.Context) (int, error) {
	return j.store.Prune(ctx, j.cfg.RetainFinished)
}

func (j *Janitor) sweep() {
	count, err := j.Sweep(context.Background())
	if err != nil {
		j.logger.Error().Err(err).Msg("Zombie sweep failed")
		return
	}
	if count > 0 {
		j.logger.Info().Int("count", count).Msg("Zombie sweep finished")
	}
}

func (j *Janitor) prune() {
	count, err := j.Prune(context.Background())
	if err != nil {
		j.logger.Error().Err(err).Msg("Session prune failed")
		return
	}
	if count > 0 {
		j.logger.Info().Int("count", count).Msg("Session prune finished")
	}
}
