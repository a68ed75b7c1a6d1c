// Package scheduler runs every site adapter once per cycle, keeps quiet
// hours and sleeps between cycles until it is stopped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/realty-crawler/internal/models"
)

type Adapter interface {
	Site() string
	Run(ctx context.Context) models.AdapterResult
}

type Config struct {
	Interval      time.Duration
	ErrorCooldown time.Duration
	Quiet         QuietWindow
	// PollInterval bounds how long a sleep goes without checking the stop
	// flag.
	PollInterval time.Duration
	// Now is the clock used for quiet hours and cycle timestamps.
	Now func() time.Time
}

type Scheduler struct {
	adapters []Adapter
	cfg      Config
	logger   *slog.Logger

	stopped atomic.Bool

	mu     sync.RWMutex
	last   *models.CycleResult
	cycles int
}

func NewScheduler(adapters []Adapter, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = 15 * time.Minute
	}
	if cfg.PollInterval <= 0 || cfg.PollInterval > 500*time.Millisecond {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		adapters: adapters,
		cfg:      cfg,
		logger:   logger.With("component", "scheduler"),
	}
}

// RunCycle runs all adapters concurrently and waits for every one of them.
// Inside the quiet window it runs nothing and returns a skipped result.
func (s *Scheduler) RunCycle(ctx context.Context) models.CycleResult {
	result := models.CycleResult{
		ID:        uuid.New(),
		StartedAt: s.cfg.Now(),
	}

	if s.cfg.Quiet.Contains(result.StartedAt) {
		result.Skipped = true
		result.FinishedAt = result.StartedAt
		s.logger.Info("quiet hours, skipping cycle", "cycle_id", result.ID, "quiet", s.cfg.Quiet.String())
		s.record(result)
		return result
	}

	s.logger.Info("cycle started", "cycle_id", result.ID, "adapters", len(s.adapters))

	results := make([]models.AdapterResult, len(s.adapters))
	var g errgroup.Group
	for i, a := range s.adapters {
		i, a := i, a
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("adapter %s panicked: %v", a.Site(), r)
					results[i] = models.AdapterResult{Site: a.Site(), Error: err.Error()}
				}
			}()
			results[i] = a.Run(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Error = err.Error()
	}

	result.Adapters = results
	result.FinishedAt = s.cfg.Now()
	s.record(result)

	s.logger.Info("cycle finished",
		"cycle_id", result.ID,
		"processed", result.Processed(),
		"succeeded", result.Succeeded(),
		"adapters", len(results),
		"duration", result.FinishedAt.Sub(result.StartedAt))
	return result
}

// Run loops until Stop is called or ctx is done. Sleeps are measured from
// the end of a cycle. A failed cycle is followed by the longer cooldown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"cooldown", s.cfg.ErrorCooldown,
		"quiet", s.cfg.Quiet.String())

	for !s.done(ctx) {
		wait := s.cfg.Interval
		if err := s.safeCycle(ctx); err != nil {
			s.logger.Error("cycle failed, cooling down",
				"fault", "cycle",
				"error", err,
				"cooldown", s.cfg.ErrorCooldown)
			wait = s.cfg.ErrorCooldown
		}
		if !s.sleep(ctx, wait) {
			break
		}
	}

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()

	res := s.RunCycle(ctx)
	if res.Error != "" {
		return fmt.Errorf("cycle %s: %s", res.ID, res.Error)
	}
	return nil
}

// sleep waits d in steps of at most PollInterval. It reports false when the
// scheduler was stopped meanwhile.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if s.done(ctx) {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := min(remaining, s.cfg.PollInterval)

		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// Stop asks the loop to exit at its next check.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

func (s *Scheduler) done(ctx context.Context) bool {
	return s.stopped.Load() || ctx.Err() != nil
}

func (s *Scheduler) record(res models.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &res
	s.cycles++
}

// LastCycle returns the most recent cycle result, if any.
func (s *Scheduler) LastCycle() (models.CycleResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return models.CycleResult{}, false
	}
	return *s.last, true
}

// Cycles counts completed cycles, skipped ones included.
func (s *Scheduler) Cycles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}
