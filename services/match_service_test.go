package services

import (
	"context"
	"testing"
	"time"

	"pong-match-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestMatchService_ClaimSlot(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	matches := NewMatchService(db)
	tour := newTournament(t, &TournamentService{DB: db, Shuffle: noShuffle})
	slot := models.SlotCoordinate{TournamentID: tour.ID, Bracket: models.BracketWinners, Round: 1, Slot: 1}

	first, err := matches.ClaimSlot(ctx, slot, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusOngoing, first.Status)
	assert.Equal(t, int64(10), first.Player1ID)

	t.Run("same pair reuses the ongoing record", func(t *testing.T) {
		again, err := matches.ClaimSlot(ctx, slot, 20, 10)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, int64(10), again.Player1ID, "stored order wins")
	})

	t.Run("another pair conflicts", func(t *testing.T) {
		_, err := matches.ClaimSlot(ctx, slot, 10, 30)
		assert.ErrorIs(t, err, models.ErrSlotConflict)
	})

	t.Run("a draw gets a fresh attempt in stored order", func(t *testing.T) {
		require.NoError(t, matches.FinishMatch(ctx, first.ID, models.MatchResult{Status: models.MatchStatusDraw}))
		next, err := matches.ClaimSlot(ctx, slot, 20, 10)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, next.ID)
		assert.Equal(t, int64(10), next.Player1ID)
		assert.Equal(t, int64(20), next.Player2ID)

		require.NoError(t, matches.FinishMatch(ctx, next.ID, models.MatchResult{
			Status:       models.MatchStatusFinished,
			Player1Score: 11,
			Player2Score: 4,
			WinnerID:     int64p(10),
		}))
	})

	t.Run("finished slot refuses everyone", func(t *testing.T) {
		_, err := matches.ClaimSlot(ctx, slot, 10, 20)
		assert.ErrorIs(t, err, models.ErrSlotFinished)
		_, err = matches.ClaimSlot(ctx, slot, 30, 40)
		assert.ErrorIs(t, err, models.ErrSlotFinished)
	})
}

func TestMatchService_FinishMatch(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	matches := NewMatchService(db)

	m, err := matches.CreateMatch(ctx, 1, 2)
	require.NoError(t, err)

	result := models.MatchResult{
		Status:       models.MatchStatusFinished,
		Player1Score: 11,
		Player2Score: 9,
		WinnerID:     int64p(1),
		Duration:     90 * time.Second,
	}
	require.NoError(t, matches.FinishMatch(ctx, m.ID, result))

	// a second write with a different result leaves the terminal record alone
	require.NoError(t, matches.FinishMatch(ctx, m.ID, models.MatchResult{Status: models.MatchStatusDraw}))

	stored, err := matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusFinished, stored.Status)
	assert.Equal(t, 11, stored.Player1Score)
	assert.Equal(t, 9, stored.Player2Score)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, int64(1), *stored.WinnerID)
	require.NotNil(t, stored.DurationMs)
	assert.Equal(t, int64(90000), *stored.DurationMs)

	err = matches.FinishMatch(ctx, "8b0f3c4e-0000-4000-8000-000000000000", result)
	assert.ErrorIs(t, err, models.ErrMatchNotFound)
}

func TestMatchService_CreateRematch(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	matches := NewMatchService(db)
	tour := newTournament(t, &TournamentService{DB: db, Shuffle: noShuffle})
	slot := models.SlotCoordinate{TournamentID: tour.ID, Bracket: models.BracketWinners, Round: 1, Slot: 1}

	drawn, err := matches.ClaimSlot(ctx, slot, 5, 6)
	require.NoError(t, err)
	require.NoError(t, matches.FinishMatch(ctx, drawn.ID, models.MatchResult{Status: models.MatchStatusDraw}))

	rematch, err := matches.CreateRematch(ctx, drawn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusOngoing, rematch.Status)
	got, ok := rematch.Coordinate()
	require.True(t, ok)
	assert.Equal(t, slot, got)
	assert.Equal(t, int64(5), rematch.Player1ID)

	claimed, err := matches.ClaimSlot(ctx, slot, 6, 5)
	require.NoError(t, err)
	assert.Equal(t, rematch.ID, claimed.ID)

	open, err := matches.CreateMatch(ctx, 7, 8)
	require.NoError(t, err)
	_, err = matches.CreateRematch(ctx, open.ID)
	assert.Error(t, err)
}

func TestMatchService_Leaderboard(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	matches := NewMatchService(db)

	play := func(p1, p2, winner int64) {
		m, err := matches.CreateMatch(ctx, p1, p2)
		require.NoError(t, err)
		require.NoError(t, matches.FinishMatch(ctx, m.ID, models.MatchResult{
			Status:   models.MatchStatusFinished,
			WinnerID: int64p(winner),
		}))
	}
	play(1, 2, 1)
	play(1, 3, 1)
	play(2, 3, 3)

	rows, err := matches.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, LeaderboardEntry{UserID: 1, Wins: 2}, rows[0])
	assert.Equal(t, LeaderboardEntry{UserID: 3, Wins: 1}, rows[1])
}
