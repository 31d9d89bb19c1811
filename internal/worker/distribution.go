package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
)

// DistributionStore is the total ranking the distribution pays into
type DistributionStore interface {
	All(ctx context.Context) ([]domain.Entry, error)
	RangeByRank(ctx context.Context, lo, hi int64) ([]domain.Entry, error)
	Increment(ctx context.Context, playerID string, delta int64) (int64, error)
	Clear(ctx context.Context) error
}

// Clearer is a store wiped at the end of a cycle
type Clearer interface {
	Clear(ctx context.Context) error
}

// PayoutRecorder durably records a finished distribution. It is optional.
type PayoutRecorder interface {
	RecordDistribution(ctx context.Context, d *domain.Distribution) error
}

// DistributionJob skims a share of all scores, pays it to the top of the
// ranking and then resets both stores for the next season.
type DistributionJob struct {
	total    DistributionStore
	daily    Clearer
	recorder PayoutRecorder
	config   *config.RankingConfig
	logger   *slog.Logger
}

// NewDistributionJob creates a new distribution job
func NewDistributionJob(
	total DistributionStore,
	daily Clearer,
	cfg *config.RankingConfig,
	logger *slog.Logger,
) *DistributionJob {
	return &DistributionJob{
		total:  total,
		daily:  daily,
		config: cfg,
		logger: logger,
	}
}

// SetRecorder sets the payout recorder
func (j *DistributionJob) SetRecorder(recorder PayoutRecorder) {
	j.recorder = recorder
}

// Run executes one cycle. It returns nil without touching the stores when
// there is nothing to distribute.
func (j *DistributionJob) Run(ctx context.Context) (*domain.Distribution, error) {
	entries, err := j.total.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading total ranking: %w", err)
	}

	var total int64
	for _, e := range entries {
		total += e.Score
	}
	if total == 0 {
		j.logger.Info("nothing to distribute", "players", len(entries))
		return nil, nil
	}

	top, err := j.total.RangeByRank(ctx, 0, j.config.TopSize-1)
	if err != nil {
		return nil, fmt.Errorf("reading top segment: %w", err)
	}

	d := &domain.Distribution{
		ID:      uuid.New().String(),
		Total:   total,
		Pool:    float64(total) * j.config.PoolRate,
		Players: int64(len(entries)),
	}

	tiered := 0.0
	for pos, share := range j.config.TierShares {
		amount := d.Pool * share
		tiered += amount
		if pos >= len(top) {
			j.logger.Warn("payout tier has no player", "position", pos)
			continue
		}
		credit := int64(math.Floor(amount))
		if credit <= 0 {
			continue
		}
		d.Payouts = append(d.Payouts, domain.Payout{
			PlayerID: top[pos].PlayerID,
			Position: int64(pos),
			Amount:   credit,
		})
	}

	// A per-head share that truncates to zero is not paid out at all.
	d.PerHead = int64(math.Floor((d.Pool - tiered) / float64(j.config.RemainderSlots)))
	if d.PerHead > 0 {
		first := int64(len(j.config.TierShares))
		for pos := first; pos < first+j.config.RemainderSlots && pos < int64(len(top)); pos++ {
			d.Payouts = append(d.Payouts, domain.Payout{
				PlayerID: top[pos].PlayerID,
				Position: pos,
				Amount:   d.PerHead,
			})
		}
	}

	for _, p := range d.Payouts {
		if _, err := j.total.Increment(ctx, p.PlayerID, p.Amount); err != nil {
			return nil, fmt.Errorf("crediting position %d: %w", p.Position, err)
		}
	}
	d.ExecutedAt = time.Now()

	j.logger.Info("weekly distribution completed",
		"distribution_id", d.ID,
		"total", d.Total,
		"pool", d.Pool,
		"credited", d.Credited(),
		"payouts", len(d.Payouts),
	)

	if j.recorder != nil {
		if err := j.recorder.RecordDistribution(ctx, d); err != nil {
			j.logger.Warn("failed to record distribution", "distribution_id", d.ID, "error", err)
		}
	}

	// Scores awarded while the cycle ran are wiped along with everything
	// else.
	if err := j.total.Clear(ctx); err != nil {
		return nil, fmt.Errorf("resetting total ranking: %w", err)
	}
	if err := j.daily.Clear(ctx); err != nil {
		return nil, fmt.Errorf("resetting daily ranking: %w", err)
	}
	j.logger.Info("leaderboard reset", "distribution_id", d.ID)

	return d, nil
}
