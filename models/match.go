package models

import (
	"time"
)

// Match status values mirrored from the live room on terminal outcomes.
const (
	MatchStatusOngoing  = "ONGOING"
	MatchStatusFinished = "FINISHED"
	MatchStatusDraw     = "DRAW"
)

// Match records one attempt at a pairing (open queue or a tournament slot).
// A tournament slot can accumulate several attempts when draws force rematches;
// the newest one is authoritative.
type Match struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	Status string `gorm:"type:varchar(16);index;not null;default:'ONGOING'" json:"status"`

	Player1ID    int64  `gorm:"index;not null" json:"player1_id"`
	Player2ID    int64  `gorm:"index;not null" json:"player2_id"`
	Player1Score int    `gorm:"default:0" json:"player1_score"`
	Player2Score int    `gorm:"default:0" json:"player2_score"`
	WinnerID     *int64 `gorm:"index" json:"winner_id,omitempty"`
	DurationMs   *int64 `json:"duration_ms,omitempty"`

	// Tournament coordinate, nil for casual matches
	TournamentID *int64  `gorm:"index:idx_match_slot" json:"tournament_id,omitempty"`
	Bracket      *string `gorm:"type:varchar(16);index:idx_match_slot" json:"bracket,omitempty"`
	Round        *int    `gorm:"index:idx_match_slot" json:"round,omitempty"`
	Slot         *int    `gorm:"index:idx_match_slot" json:"slot,omitempty"`

	Timestamps
}

// Coordinate returns the tournament slot of the record, if any.
func (m *Match) Coordinate() (SlotCoordinate, bool) {
	if m.TournamentID == nil || m.Bracket == nil || m.Round == nil || m.Slot == nil {
		return SlotCoordinate{}, false
	}
	return SlotCoordinate{
		TournamentID: *m.TournamentID,
		Bracket:      *m.Bracket,
		Round:        *m.Round,
		Slot:         *m.Slot,
	}, true
}

// IsTerminal reports whether the record no longer accepts results.
func (m *Match) IsTerminal() bool {
	return m.Status == MatchStatusFinished || m.Status == MatchStatusDraw
}

// HasPlayers checks the stored pair against two identities, order-independent.
func (m *Match) HasPlayers(a, b int64) bool {
	return (m.Player1ID == a && m.Player2ID == b) || (m.Player1ID == b && m.Player2ID == a)
}

// MatchResult carries the terminal fields written back at completion.
type MatchResult struct {
	Status       string
	Player1Score int
	Player2Score int
	WinnerID     *int64
	Duration     time.Duration
}

// DurationMillis is the value stored in Match.DurationMs.
func (r MatchResult) DurationMillis() *int64 {
	ms := r.Duration.Milliseconds()
	return &ms
}
