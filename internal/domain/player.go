package domain

import "time"

// Player represents a player profile. Profiles are written once, on the
// first connection, and never renamed.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// Identity is the resolved identity of a connection
type Identity = Player

// Entry is a single (player, score) pair of a ranking store with its
// 0-based descending rank
type Entry struct {
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
	Rank     int64  `json:"rank"`
}

// ScoreAward represents a score increase for a player
type ScoreAward struct {
	PlayerID  string    `json:"player_id"`
	Name      string    `json:"name,omitempty"`
	Country   string    `json:"country,omitempty"`
	Amount    int64     `json:"amount"`
	GameID    string    `json:"game_id,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Award sources
const (
	AwardSourceSession = "session"
	AwardSourceHTTP    = "http"
	AwardSourceKafka   = "kafka"
)
