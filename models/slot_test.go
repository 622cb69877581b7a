package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotCoordinate_Valid(t *testing.T) {
	tests := []struct {
		name string
		c    SlotCoordinate
		want bool
	}{
		{"winners", SlotCoordinate{1, BracketWinners, 1, 1}, true},
		{"losers", SlotCoordinate{1, BracketLosers, 3, 2}, true},
		{"no tournament", SlotCoordinate{0, BracketWinners, 1, 1}, false},
		{"round zero", SlotCoordinate{1, BracketWinners, 0, 1}, false},
		{"slot zero", SlotCoordinate{1, BracketWinners, 1, 0}, false},
		{"unknown bracket", SlotCoordinate{1, "FINALS", 1, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Valid())
		})
	}
}

func TestSlotCoordinate_Navigation(t *testing.T) {
	c := SlotCoordinate{TournamentID: 4, Bracket: BracketWinners, Round: 1, Slot: 3}

	assert.Equal(t, 4, c.Sibling().Slot)
	assert.Equal(t, 3, c.Sibling().Sibling().Slot)
	assert.True(t, c.FeedsPlayerOne())
	assert.False(t, c.Sibling().FeedsPlayerOne())

	next := c.Next()
	assert.Equal(t, SlotCoordinate{TournamentID: 4, Bracket: BracketWinners, Round: 2, Slot: 2}, next)
	assert.Equal(t, next, c.Sibling().Next())
	assert.Equal(t, "4/WINNERS/r1/s3", c.String())
}

func TestMatch_Helpers(t *testing.T) {
	m := &Match{Player1ID: 1, Player2ID: 2, Status: MatchStatusOngoing}
	assert.True(t, m.HasPlayers(2, 1))
	assert.False(t, m.HasPlayers(1, 3))
	assert.False(t, m.IsTerminal())
	_, ok := m.Coordinate()
	assert.False(t, ok)

	m.Status = MatchStatusDraw
	assert.True(t, m.IsTerminal())
}
