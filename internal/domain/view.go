package domain

import "time"

// ViewRecord is one row of a personalized leaderboard view
type ViewRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Country   string `json:"country"`
	Money     int64  `json:"money"`
	Rank      int64  `json:"rank"`
	TodayRank *int64 `json:"todayRank"`
}

// View is the ordered leaderboard a single player sees: the top segment
// followed by the part of their neighborhood not already in it.
type View []ViewRecord

// IDs returns the player ids of the view in order
func (v View) IDs() []string {
	ids := make([]string, len(v))
	for i, r := range v {
		ids[i] = r.ID
	}
	return ids
}

// Changed reports whether cur differs observably from prev. The comparison
// is positional, so a reordering of the same players counts as a change.
func Changed(prev, cur View) bool {
	if len(prev) != len(cur) {
		return true
	}
	for i := range cur {
		if !sameRecord(prev[i], cur[i]) {
			return true
		}
	}
	return false
}

func sameRecord(a, b ViewRecord) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Country != b.Country ||
		a.Money != b.Money || a.Rank != b.Rank {
		return false
	}
	switch {
	case a.TodayRank == nil && b.TodayRank == nil:
		return true
	case a.TodayRank == nil || b.TodayRank == nil:
		return false
	default:
		return *a.TodayRank == *b.TodayRank
	}
}

// Payout is a single credit applied by a distribution cycle
type Payout struct {
	PlayerID string `json:"player_id"`
	Position int64  `json:"position"`
	Amount   int64  `json:"amount"`
}

// Distribution summarizes one distribution cycle
type Distribution struct {
	ID         string    `json:"id"`
	Total      int64     `json:"total"`
	Pool       float64   `json:"pool"`
	PerHead    int64     `json:"per_head"`
	Payouts    []Payout  `json:"payouts"`
	Players    int64     `json:"players"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Credited returns the sum of all payouts
func (d *Distribution) Credited() int64 {
	var sum int64
	for _, p := range d.Payouts {
		sum += p.Amount
	}
	return sum
}
