package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
)

// Repository archives players, award events and distribution payouts.
// Redis stays the source of truth for live rankings.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			country VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS award_events (
			id BIGSERIAL PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			amount BIGINT NOT NULL,
			game_id VARCHAR(64),
			source VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS distributions (
			id UUID PRIMARY KEY,
			total BIGINT NOT NULL,
			pool DOUBLE PRECISION NOT NULL,
			per_head BIGINT NOT NULL,
			players INT NOT NULL,
			executed_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS distribution_payouts (
			distribution_id UUID NOT NULL REFERENCES distributions(id) ON DELETE CASCADE,
			player_id VARCHAR(64) NOT NULL,
			position INT NOT NULL,
			amount BIGINT NOT NULL,
			PRIMARY KEY (distribution_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_award_events_player ON award_events(player_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_distribution_payouts_player ON distribution_payouts(player_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// SavePlayer stores a player profile. Profiles are immutable, so an
// existing row is kept as is.
func (r *Repository) SavePlayer(ctx context.Context, player domain.Player) error {
	query := `
		INSERT INTO players (id, name, country)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, player.ID, player.Name, player.Country); err != nil {
		return fmt.Errorf("saving player: %w", err)
	}
	return nil
}

// RecordAwards appends award events in one round trip
func (r *Repository) RecordAwards(ctx context.Context, awards []domain.ScoreAward) error {
	if len(awards) == 0 {
		return nil
	}

	query := `
		INSERT INTO award_events (player_id, amount, game_id, source, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`
	batch := &pgx.Batch{}
	for _, a := range awards {
		batch.Queue(query, a.PlayerID, a.Amount, a.GameID, a.Source, a.Timestamp)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("recording award events: %w", err)
	}
	return nil
}

// RecordDistribution stores a distribution and its payouts in one
// transaction
func (r *Repository) RecordDistribution(ctx context.Context, d *domain.Distribution) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO distributions (id, total, pool, per_head, players, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.Total, d.Pool, d.PerHead, d.Players, d.ExecutedAt)
	if err != nil {
		return fmt.Errorf("recording distribution: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range d.Payouts {
		batch.Queue(`
			INSERT INTO distribution_payouts (distribution_id, player_id, position, amount)
			VALUES ($1, $2, $3, $4)
		`, d.ID, p.PlayerID, p.Position, p.Amount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("recording payouts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing distribution: %w", err)
	}
	return nil
}
