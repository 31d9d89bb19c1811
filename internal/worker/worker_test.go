package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/leaderboard-live/internal/domain"
	redisstore "github.com/leaderboard-live/internal/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) (*redisstore.RankingStore, *redisstore.RankingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisstore.NewRankingStore(client, "ranking:total"),
		redisstore.NewRankingStore(client, "ranking:daily"),
		mr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedScores(t *testing.T, store *redisstore.RankingStore, scores ...int64) {
	t.Helper()
	for i, score := range scores {
		_, err := store.Increment(context.Background(), fmt.Sprintf("p%03d", i), score)
		require.NoError(t, err)
	}
}

// snapshotRecorder captures the total ranking as it stands when the
// distribution is recorded, after credits and before the reset
type snapshotRecorder struct {
	total    *redisstore.RankingStore
	recorded *domain.Distribution
	scores   map[string]int64
}

func (r *snapshotRecorder) RecordDistribution(ctx context.Context, d *domain.Distribution) error {
	r.recorded = d
	entries, err := r.total.All(ctx)
	if err != nil {
		return err
	}
	r.scores = make(map[string]int64, len(entries))
	for _, e := range entries {
		r.scores[e.PlayerID] = e.Score
	}
	return nil
}
