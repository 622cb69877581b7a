package game

import (
	"context"

	"pong-match-service/models"
)

// Conn is a live transport handle. Implementations must make Send non-blocking and
// Close safe to call more than once; Close must not call back into the Coordinator.
type Conn interface {
	Send(msg Outbound) error
	// Ping issues a heartbeat ping; the reply is reported through Coordinator.MarkAlive.
	Ping() error
	Close() error
	IsOpen() bool
}

// MatchStore is the persistence collaborator for match records.
type MatchStore interface {
	CreateMatch(ctx context.Context, player1, player2 int64) (*models.Match, error)
	// ClaimSlot returns the ONGOING record to play for a tournament slot, creating one if needed.
	// It fails with models.ErrSlotFinished or models.ErrSlotConflict.
	ClaimSlot(ctx context.Context, slot models.SlotCoordinate, player1, player2 int64) (*models.Match, error)
	FinishMatch(ctx context.Context, matchID string, result models.MatchResult) error
	CreateRematch(ctx context.Context, matchID string) (*models.Match, error)
}

// BracketAdvancer is triggered on every terminal tournament outcome with a winner.
type BracketAdvancer interface {
	AdvanceBracket(ctx context.Context, slot models.SlotCoordinate, winnerID int64) error
}

// Publisher hands match events to downstream consumers.
type Publisher interface {
	Publish(event string, payload any) error
}

// Archiver stores a finished match summary out of band.
type Archiver interface {
	ArchiveMatch(ctx context.Context, matchID string) error
}

// ResultBacklog takes terminal writes that failed so they can be retried later.
type ResultBacklog interface {
	Defer(matchID string, result models.MatchResult, slot *models.SlotCoordinate, winnerID *int64)
}

// Events published by the coordinator.
const (
	EventMatchStarted  = "match.started"
	EventMatchFinished = "match.finished"
	EventMatchRematch  = "match.rematch"
)

// MatchEvent is the payload of every published event.
type MatchEvent struct {
	RoomID     string                 `json:"room_id"`
	MatchID    string                 `json:"match_id"`
	Player1ID  int64                  `json:"player1_id"`
	Player2ID  int64                  `json:"player2_id"`
	Score      ScoreView              `json:"score"`
	Outcome    string                 `json:"outcome,omitempty"`
	WinnerID   *int64                 `json:"winner_id,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Slot       *models.SlotCoordinate `json:"slot,omitempty"`
}
