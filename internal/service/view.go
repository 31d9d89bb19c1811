package service

import (
	"context"
	"fmt"

	"github.com/leaderboard-live/internal/domain"
)

// Top returns the hydrated top segment
func (s *LeaderboardService) Top(ctx context.Context) (domain.View, error) {
	top, err := s.total.RangeByRank(ctx, 0, s.config.TopSize-1)
	if err != nil {
		return nil, fmt.Errorf("getting top segment: %w", err)
	}
	return s.hydrate(ctx, top)
}

// ComputeView derives the leaderboard a player sees: the top segment
// followed by the entries around the player's own rank that are not
// already part of it.
func (s *LeaderboardService) ComputeView(ctx context.Context, playerID string) (domain.View, error) {
	top, err := s.total.RangeByRank(ctx, 0, s.config.TopSize-1)
	if err != nil {
		return nil, fmt.Errorf("getting top segment: %w", err)
	}

	rank, ok, err := s.total.RankOf(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting player rank: %w", err)
	}
	if !ok {
		return s.hydrate(ctx, top)
	}

	neighborhood, err := s.total.RangeByRank(ctx, rank-s.config.WindowAbove, rank+s.config.WindowBelow)
	if err != nil {
		return nil, fmt.Errorf("getting neighborhood: %w", err)
	}

	rows := make([]domain.Entry, 0, len(top)+len(neighborhood))
	rows = append(rows, top...)
	rows = append(rows, trimOverlap(top, neighborhood)...)

	return s.hydrate(ctx, rows)
}

// trimOverlap drops the leading part of neighborhood that is already in
// top: walking from the last entry down, the first entry found in top and
// everything before it are removed.
func trimOverlap(top, neighborhood []domain.Entry) []domain.Entry {
	inTop := make(map[string]struct{}, len(top))
	for _, e := range top {
		inTop[e.PlayerID] = struct{}{}
	}

	for i := len(neighborhood) - 1; i >= 0; i-- {
		if _, ok := inTop[neighborhood[i].PlayerID]; ok {
			return neighborhood[i+1:]
		}
	}
	return neighborhood
}

// hydrate attaches profile fields and the daily snapshot rank. Entries
// without a profile are logged and left out.
func (s *LeaderboardService) hydrate(ctx context.Context, entries []domain.Entry) (domain.View, error) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID
	}

	profiles, err := s.profiles.BatchGet(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("getting profiles: %w", err)
	}
	todayRanks, err := s.daily.ScoresOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("getting today ranks: %w", err)
	}

	view := make(domain.View, 0, len(entries))
	for i, e := range entries {
		profile := profiles[i]
		if profile == nil {
			s.logger.Error("ranked player has no profile", "player_id", e.PlayerID, "rank", e.Rank)
			continue
		}
		view = append(view, domain.ViewRecord{
			ID:        e.PlayerID,
			Name:      profile.Name,
			Country:   profile.Country,
			Money:     e.Score,
			Rank:      e.Rank,
			TodayRank: todayRanks[i],
		})
	}
	return view, nil
}
