package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/leaderboard-live/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RankingStore is an ordered player -> score index backed by one sorted set.
// Ranks are 0-based and descending by score.
type RankingStore struct {
	client *redis.Client
	key    string
}

// NewRankingStore creates a ranking store over the sorted set at key
func NewRankingStore(client *redis.Client, key string) *RankingStore {
	return &RankingStore{
		client: client,
		key:    key,
	}
}

// Key returns the sorted set key of the store
func (s *RankingStore) Key() string {
	return s.key
}

// Increment adds delta to a player's score, creating the entry if absent
func (s *RankingStore) Increment(ctx context.Context, playerID string, delta int64) (int64, error) {
	newScore, err := s.client.ZIncrBy(ctx, s.key, float64(delta), playerID).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing score: %w", err)
	}
	return int64(newScore), nil
}

// AddIfAbsent inserts a player with the given score unless an entry exists.
// It reports whether the entry was inserted.
func (s *RankingStore) AddIfAbsent(ctx context.Context, playerID string, score int64) (bool, error) {
	added, err := s.client.ZAddNX(ctx, s.key, redis.Z{
		Score:  float64(score),
		Member: playerID,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("adding entry: %w", err)
	}
	return added > 0, nil
}

// RankOf returns a player's rank. The bool is false when the player has
// no entry.
func (s *RankingStore) RankOf(ctx context.Context, playerID string) (int64, bool, error) {
	rank, err := s.client.ZRevRank(ctx, s.key, playerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("getting rank: %w", err)
	}
	return rank, true, nil
}

// RangeByRank returns the entries ranked lo through hi inclusive, best
// first. A range with lo == hi is treated as empty. A negative lo is
// clamped to zero and bounds past the end simply yield fewer entries.
func (s *RankingStore) RangeByRank(ctx context.Context, lo, hi int64) ([]domain.Entry, error) {
	if lo == hi {
		return []domain.Entry{}, nil
	}
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		return []domain.Entry{}, nil
	}

	results, err := s.client.ZRevRangeWithScores(ctx, s.key, lo, hi).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}
	return toEntries(results, lo), nil
}

// All returns every entry, best first
func (s *RankingStore) All(ctx context.Context) ([]domain.Entry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting all scores: %w", err)
	}
	return toEntries(results, 0), nil
}

// ScoresOf looks up the scores of ids in one round trip. The result is
// aligned with ids and holds nil for players without an entry.
func (s *RankingStore) ScoresOf(ctx context.Context, ids []string) ([]*int64, error) {
	scores := make([]*int64, len(ids))
	if len(ids) == 0 {
		return scores, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.FloatCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.ZScore(ctx, s.key, id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("getting scores: %w", err)
	}

	for i, cmd := range cmds {
		score, err := cmd.Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("getting score result: %w", err)
		}
		v := int64(score)
		scores[i] = &v
	}
	return scores, nil
}

// SetMany overwrites the scores of the given players using pipelining
func (s *RankingStore) SetMany(ctx context.Context, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for playerID, score := range scores {
		pipe.ZAdd(ctx, s.key, redis.Z{
			Score:  float64(score),
			Member: playerID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting scores: %w", err)
	}
	return nil
}

// Cardinality returns the number of entries
func (s *RankingStore) Cardinality(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// Clear removes every entry
func (s *RankingStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clearing ranking: %w", err)
	}
	return nil
}

func toEntries(results []redis.Z, offset int64) []domain.Entry {
	entries := make([]domain.Entry, len(results))
	for i, result := range results {
		entries[i] = domain.Entry{
			PlayerID: result.Member.(string),
			Score:    int64(result.Score),
			Rank:     offset + int64(i),
		}
	}
	return entries
}
