package models

import (
	"time"
)

const (
	TournamentStatusOpen     = "OPEN"
	TournamentStatusOngoing  = "ONGOING"
	TournamentStatusFinished = "FINISHED"
)

// Tournament is the bracket container. It is OPEN while players sign up, ONGOING once
// the first round is generated and FINISHED when the final has a winner.
type Tournament struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name       string     `json:"name" gorm:"not null"`
	Status     string     `json:"status" gorm:"type:varchar(16);default:'OPEN'"`
	WinnerID   *int64     `json:"winner_id,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Participants []TournamentParticipant `json:"participants,omitempty" gorm:"foreignKey:TournamentID"`
	Matches      []Match                 `json:"matches,omitempty" gorm:"foreignKey:TournamentID"`

	Timestamps
}

// TournamentParticipant is one entrant; (tournament_id, user_id) is unique.
type TournamentParticipant struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TournamentID int64     `json:"tournament_id" gorm:"not null;uniqueIndex:idx_participant"`
	UserID       int64     `json:"user_id" gorm:"not null;uniqueIndex:idx_participant"`
	JoinedAt     time.Time `json:"joined_at" gorm:"autoCreateTime"`
}
