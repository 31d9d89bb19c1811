package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leaderboard-live/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProfileStore keeps player profiles as JSON string keys
type ProfileStore struct {
	client *redis.Client
}

// NewProfileStore creates a profile store
func NewProfileStore(client *redis.Client) *ProfileStore {
	return &ProfileStore{client: client}
}

// profileKey returns the Redis key for a player's profile
func (s *ProfileStore) profileKey(playerID string) string {
	return fmt.Sprintf("player:%s:profile", playerID)
}

// GetOrCreate stores the profile unless one already exists and returns the
// stored profile. Creation uses SETNX so concurrent callers create it once.
func (s *ProfileStore) GetOrCreate(ctx context.Context, player domain.Player) (domain.Player, bool, error) {
	data, err := json.Marshal(player)
	if err != nil {
		return domain.Player{}, false, fmt.Errorf("marshaling profile: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.profileKey(player.ID), data, 0).Result()
	if err != nil {
		return domain.Player{}, false, fmt.Errorf("creating profile: %w", err)
	}
	if created {
		return player, true, nil
	}

	existing, err := s.Get(ctx, player.ID)
	if err != nil {
		return domain.Player{}, false, err
	}
	return *existing, false, nil
}

// Get returns a single profile
func (s *ProfileStore) Get(ctx context.Context, playerID string) (*domain.Player, error) {
	raw, err := s.client.Get(ctx, s.profileKey(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	var player domain.Player
	if err := json.Unmarshal([]byte(raw), &player); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", playerID, err)
	}
	return &player, nil
}

// BatchGet returns the profiles of ids in one round trip, aligned with ids.
// Missing profiles are nil.
func (s *ProfileStore) BatchGet(ctx context.Context, ids []string) ([]*domain.Player, error) {
	players := make([]*domain.Player, len(ids))
	if len(ids) == 0 {
		return players, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.profileKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting profiles: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var player domain.Player
		if err := json.Unmarshal([]byte(raw), &player); err != nil {
			return nil, fmt.Errorf("decoding profile %s: %w", ids[i], err)
		}
		players[i] = &player
	}
	return players, nil
}
