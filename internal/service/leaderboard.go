package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
)

// RankingStore is the ordered score index the service reads and writes
type RankingStore interface {
	Increment(ctx context.Context, playerID string, delta int64) (int64, error)
	AddIfAbsent(ctx context.Context, playerID string, score int64) (bool, error)
	RankOf(ctx context.Context, playerID string) (int64, bool, error)
	RangeByRank(ctx context.Context, lo, hi int64) ([]domain.Entry, error)
	ScoresOf(ctx context.Context, ids []string) ([]*int64, error)
	SetMany(ctx context.Context, scores map[string]int64) error
}

// ProfileStore holds player profiles
type ProfileStore interface {
	GetOrCreate(ctx context.Context, player domain.Player) (domain.Player, bool, error)
	BatchGet(ctx context.Context, ids []string) ([]*domain.Player, error)
}

// Archive durably records players and awards. It is optional.
type Archive interface {
	SavePlayer(ctx context.Context, player domain.Player) error
	RecordAwards(ctx context.Context, awards []domain.ScoreAward) error
}

// Notifier is told about players whose own score just changed so their
// sessions can recompute without waiting for the next tick
type Notifier interface {
	Nudge(playerID string)
}

// LeaderboardService provides registration, awards and personalized views
type LeaderboardService struct {
	total    RankingStore
	daily    RankingStore
	profiles ProfileStore
	archive  Archive
	notifier Notifier
	config   *config.RankingConfig
	logger   *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	total RankingStore,
	daily RankingStore,
	profiles ProfileStore,
	cfg *config.RankingConfig,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		total:    total,
		daily:    daily,
		profiles: profiles,
		config:   cfg,
		logger:   logger,
	}
}

// SetArchive sets the durable archive for players and awards
func (s *LeaderboardService) SetArchive(archive Archive) {
	s.archive = archive
}

// SetNotifier sets the notifier used after awards
func (s *LeaderboardService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Register creates the player's profile on first sight and makes sure the
// player has a ranking entry. A freshly inserted ranking entry also gets a
// daily entry holding its current rank.
func (s *LeaderboardService) Register(ctx context.Context, identity domain.Identity) (domain.Player, bool, error) {
	if identity.ID == "" {
		return domain.Player{}, false, domain.ErrInvalidIdentity
	}

	player, created, err := s.profiles.GetOrCreate(ctx, identity)
	if err != nil {
		return domain.Player{}, false, fmt.Errorf("registering profile: %w", err)
	}

	added, err := s.total.AddIfAbsent(ctx, player.ID, 0)
	if err != nil {
		return domain.Player{}, false, fmt.Errorf("initializing ranking entry: %w", err)
	}
	if added {
		rank, ok, err := s.total.RankOf(ctx, player.ID)
		if err != nil {
			return domain.Player{}, false, fmt.Errorf("getting fresh rank: %w", err)
		}
		if ok {
			if err := s.daily.SetMany(ctx, map[string]int64{player.ID: rank}); err != nil {
				return domain.Player{}, false, fmt.Errorf("initializing daily entry: %w", err)
			}
		}
	}

	if created {
		s.logger.Info("player registered", "player_id", player.ID, "country", player.Country)
		if s.archive != nil {
			if err := s.archive.SavePlayer(ctx, player); err != nil {
				s.logger.Warn("failed to archive player", "player_id", player.ID, "error", err)
			}
		}
	}

	return player, created, nil
}

// AwardScore increases a player's score and returns the new score
func (s *LeaderboardService) AwardScore(ctx context.Context, award domain.ScoreAward) (int64, error) {
	if award.PlayerID == "" {
		return 0, domain.ErrInvalidRequest
	}
	if award.Amount < 0 {
		return 0, domain.ErrInvalidScore
	}

	newScore, err := s.total.Increment(ctx, award.PlayerID, award.Amount)
	if err != nil {
		return 0, fmt.Errorf("awarding score: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Nudge(award.PlayerID)
	}
	s.recordAwards(ctx, []domain.ScoreAward{award})

	return newScore, nil
}

// AwardPlayer applies a single award from outside a session. An unknown
// player is registered when the award carries a name and rejected with
// ErrPlayerNotFound otherwise.
func (s *LeaderboardService) AwardPlayer(ctx context.Context, award domain.ScoreAward) (int64, error) {
	if award.PlayerID == "" {
		return 0, domain.ErrInvalidRequest
	}
	if award.Amount < 0 {
		return 0, domain.ErrInvalidScore
	}

	known, err := s.profiles.BatchGet(ctx, []string{award.PlayerID})
	if err != nil {
		return 0, fmt.Errorf("checking award player: %w", err)
	}
	if known[0] == nil {
		if award.Name == "" {
			return 0, domain.ErrPlayerNotFound
		}
		identity := domain.Identity{ID: award.PlayerID, Name: award.Name, Country: award.Country}
		if _, _, err := s.Register(ctx, identity); err != nil {
			return 0, err
		}
	}

	return s.AwardScore(ctx, award)
}

// AwardScoreBatch applies a batch of awards. Awards carrying a name
// register their player first; awards for unknown players are skipped.
func (s *LeaderboardService) AwardScoreBatch(ctx context.Context, awards []domain.ScoreAward) error {
	ids := make([]string, len(awards))
	for i, a := range awards {
		ids[i] = a.PlayerID
	}
	known, err := s.profiles.BatchGet(ctx, ids)
	if err != nil {
		return fmt.Errorf("checking award players: %w", err)
	}

	applied := make([]domain.ScoreAward, 0, len(awards))
	for i, award := range awards {
		if award.PlayerID == "" || award.Amount < 0 {
			s.logger.Warn("invalid award skipped", "player_id", award.PlayerID, "amount", award.Amount)
			continue
		}
		if known[i] == nil {
			if award.Name == "" {
				s.logger.Warn("award for unknown player skipped", "player_id", award.PlayerID)
				continue
			}
			identity := domain.Identity{ID: award.PlayerID, Name: award.Name, Country: award.Country}
			if _, _, err := s.Register(ctx, identity); err != nil {
				return err
			}
		}

		if _, err := s.total.Increment(ctx, award.PlayerID, award.Amount); err != nil {
			return fmt.Errorf("awarding score: %w", err)
		}
		if s.notifier != nil {
			s.notifier.Nudge(award.PlayerID)
		}
		applied = append(applied, award)
	}

	s.recordAwards(ctx, applied)
	return nil
}

func (s *LeaderboardService) recordAwards(ctx context.Context, awards []domain.ScoreAward) {
	if s.archive == nil || len(awards) == 0 {
		return
	}
	for i := range awards {
		if awards[i].Timestamp.IsZero() {
			awards[i].Timestamp = time.Now()
		}
	}
	if err := s.archive.RecordAwards(ctx, awards); err != nil {
		s.logger.Warn("failed to record award events", "count", len(awards), "error", err)
	}
}
