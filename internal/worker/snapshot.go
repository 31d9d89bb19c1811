package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leaderboard-live/internal/domain"
)

// SnapshotSource is the ranking read by the snapshot
type SnapshotSource interface {
	All(ctx context.Context) ([]domain.Entry, error)
}

// SnapshotTarget receives the rank of every player
type SnapshotTarget interface {
	SetMany(ctx context.Context, scores map[string]int64) error
}

// SnapshotJob copies every player's current total rank into the daily
// store. Running it again without score changes rewrites the same mapping.
type SnapshotJob struct {
	total  SnapshotSource
	daily  SnapshotTarget
	logger *slog.Logger
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(total SnapshotSource, daily SnapshotTarget, logger *slog.Logger) *SnapshotJob {
	return &SnapshotJob{
		total:  total,
		daily:  daily,
		logger: logger,
	}
}

// Run takes the snapshot and returns the number of players written
func (j *SnapshotJob) Run(ctx context.Context) (int, error) {
	startTime := time.Now()

	entries, err := j.total.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading total ranking: %w", err)
	}

	ranks := make(map[string]int64, len(entries))
	for _, e := range entries {
		ranks[e.PlayerID] = e.Rank
	}

	if err := j.daily.SetMany(ctx, ranks); err != nil {
		return 0, fmt.Errorf("writing daily ranks: %w", err)
	}

	j.logger.Info("daily rank snapshot completed",
		"players", len(ranks),
		"duration", time.Since(startTime),
	)
	return len(ranks), nil
}
