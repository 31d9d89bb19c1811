package worker

import (
	"context"
	"testing"

	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) (*Scheduler, *config.Config) {
	t.Helper()
	total, daily, _ := newStores(t)
	cfg := config.DefaultConfig()
	logger := discardLogger()
	seedScores(t, total, 300, 200, 100)

	s := NewScheduler(
		NewSnapshotJob(total, daily, logger),
		NewDistributionJob(total, daily, &cfg.Ranking, logger),
		&cfg.Schedule,
		logger,
	)
	return s, cfg
}

func TestSchedulerStartStop(t *testing.T) {
	s, _ := newScheduler(t)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start())

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s, cfg := newScheduler(t)
	cfg.Schedule.Weekly = "every sunday"

	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestSchedulerRejectsBadTimezone(t *testing.T) {
	s, cfg := newScheduler(t)
	cfg.Schedule.Timezone = "Mars/Olympus"

	assert.Error(t, s.Start())
}

func TestSchedulerManualRuns(t *testing.T) {
	s, _ := newScheduler(t)
	ctx := context.Background()

	n, err := s.RunSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	d, err := s.RunDistribution(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, int64(600), d.Total)
}

func TestSchedulerJobsAreExclusive(t *testing.T) {
	s, _ := newScheduler(t)
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	_, err := s.RunSnapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrJobRunning)
	_, err = s.RunDistribution(context.Background())
	assert.ErrorIs(t, err, domain.ErrJobRunning)
}
