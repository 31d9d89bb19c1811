package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the snapshot and distribution jobs on their cron
// schedules. The two jobs never run at the same time within one process,
// whether fired by cron or triggered by hand.
type Scheduler struct {
	snapshot     *SnapshotJob
	distribution *DistributionJob
	config       *config.ScheduleConfig
	logger       *slog.Logger
	cron         *cron.Cron
	jobMu        sync.Mutex
	mu           sync.Mutex
	running      bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	snapshot *SnapshotJob,
	distribution *DistributionJob,
	cfg *config.ScheduleConfig,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		snapshot:     snapshot,
		distribution: distribution,
		config:       cfg,
		logger:       logger,
	}
}

// Start registers both jobs with cron and starts it
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	loc, err := time.LoadLocation(s.config.Timezone)
	if err != nil {
		return fmt.Errorf("loading schedule timezone: %w", err)
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)

	if _, err := c.AddFunc(s.config.Daily, s.onDailyTick); err != nil {
		return fmt.Errorf("scheduling daily snapshot: %w", err)
	}
	if _, err := c.AddFunc(s.config.Weekly, s.onWeeklyTick); err != nil {
		return fmt.Errorf("scheduling weekly distribution: %w", err)
	}

	c.Start()
	s.cron = c
	s.running = true

	s.logger.Info("ranking scheduler started",
		"daily", s.config.Daily,
		"weekly", s.config.Weekly,
		"timezone", s.config.Timezone,
	)
	return nil
}

// Stop stops cron and waits for a running job to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()

	s.logger.Info("ranking scheduler stopped")
	return nil
}

// IsRunning returns whether cron is started
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunSnapshot runs the snapshot job unless another job is in progress
func (s *Scheduler) RunSnapshot(ctx context.Context) (int, error) {
	if !s.jobMu.TryLock() {
		return 0, domain.ErrJobRunning
	}
	defer s.jobMu.Unlock()

	return s.snapshot.Run(ctx)
}

// RunDistribution runs the distribution job unless another job is in
// progress
func (s *Scheduler) RunDistribution(ctx context.Context) (*domain.Distribution, error) {
	if !s.jobMu.TryLock() {
		return nil, domain.ErrJobRunning
	}
	defer s.jobMu.Unlock()

	return s.distribution.Run(ctx)
}

// Jobs run to completion once fired; they get a fresh context rather than
// one tied to the scheduler's lifetime.
func (s *Scheduler) onDailyTick() {
	if _, err := s.RunSnapshot(context.Background()); err != nil {
		s.logger.Error("daily snapshot failed", "error", err)
	}
}

func (s *Scheduler) onWeeklyTick() {
	if _, err := s.RunDistribution(context.Background()); err != nil {
		s.logger.Error("weekly distribution failed", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
