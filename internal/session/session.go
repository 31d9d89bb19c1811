// Package session runs the per-connection loop that recomputes a player's
// leaderboard view and pushes it when it changes.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leaderboard-live/internal/domain"
)

// ViewSource computes a player's personalized view
type ViewSource interface {
	ComputeView(ctx context.Context, playerID string) (domain.View, error)
}

// Sink delivers a view to the connection
type Sink interface {
	Push(view domain.View) error
}

// Session polls a player's view on a fixed interval and whenever it is
// nudged, and pushes it to the sink only when it changed.
type Session struct {
	playerID string
	views    ViewSource
	sink     Sink
	interval time.Duration
	nudge    chan struct{}
	last     domain.View
	logger   *slog.Logger
}

// New creates a session for a player
func New(playerID string, views ViewSource, sink Sink, interval time.Duration, logger *slog.Logger) *Session {
	return &Session{
		playerID: playerID,
		views:    views,
		sink:     sink,
		interval: interval,
		nudge:    make(chan struct{}, 1),
		logger:   logger.With("player_id", playerID),
	}
}

// PlayerID returns the player the session belongs to
func (s *Session) PlayerID() string {
	return s.playerID
}

// Nudge asks for an immediate recompute. Nudges arriving while one is
// pending are coalesced.
func (s *Session) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Run pushes the initial view and then loops until ctx is cancelled. It
// returns an error only when the view can no longer be computed; the
// connection should be closed in that case.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.refresh(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.nudge:
		}
		if err := s.refresh(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) refresh(ctx context.Context) error {
	view, err := s.views.ComputeView(ctx, s.playerID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("computing view: %w", err)
	}

	if !domain.Changed(s.last, view) {
		return nil
	}

	if err := s.sink.Push(view); err != nil {
		// Keep the last delivered view so the next refresh retries.
		s.logger.Warn("failed to push view", "error", err)
		return nil
	}
	s.last = view
	return nil
}
