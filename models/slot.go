package models

import (
	"errors"
	"fmt"
)

const (
	BracketWinners = "WINNERS"
	BracketLosers  = "LOSERS"
)

var (
	// ErrSlotFinished means the slot already has a FINISHED record.
	ErrSlotFinished = errors.New("tournament slot already finished")
	// ErrSlotConflict means the slot's ONGOING record belongs to a different pair.
	ErrSlotConflict = errors.New("tournament slot bound to another pair")

	ErrMatchNotFound = errors.New("match not found")
)

// SlotCoordinate identifies one bracket position: (tournament, bracket, round, slot).
// Rounds and slots are 1-based.
type SlotCoordinate struct {
	TournamentID int64  `json:"tournamentId"`
	Bracket      string `json:"bracket"`
	Round        int    `json:"round"`
	Slot         int    `json:"slot"`
}

func (c SlotCoordinate) String() string {
	return fmt.Sprintf("%d/%s/r%d/s%d", c.TournamentID, c.Bracket, c.Round, c.Slot)
}

// Valid rejects coordinates that cannot exist in a bracket.
func (c SlotCoordinate) Valid() bool {
	if c.TournamentID <= 0 || c.Round < 1 || c.Slot < 1 {
		return false
	}
	return c.Bracket == BracketWinners || c.Bracket == BracketLosers
}

// Sibling is the slot whose winner meets this slot's winner in the next round:
// 1<->2, 3<->4, ...
func (c SlotCoordinate) Sibling() SlotCoordinate {
	s := c
	if c.Slot%2 == 1 {
		s.Slot = c.Slot + 1
	} else {
		s.Slot = c.Slot - 1
	}
	return s
}

// Next is the next-round slot fed by this slot, ceil(slot/2).
func (c SlotCoordinate) Next() SlotCoordinate {
	n := c
	n.Round = c.Round + 1
	n.Slot = (c.Slot + 1) / 2
	return n
}

// FeedsPlayerOne reports whether this slot's winner takes player one in the next round.
func (c SlotCoordinate) FeedsPlayerOne() bool {
	return c.Slot%2 == 1
}
