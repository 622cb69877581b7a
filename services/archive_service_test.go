package services

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"pong-match-service/models"
	"pong-match-service/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPutter struct {
	keys   []string
	bodies [][]byte
}

func (p *recordingPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	p.keys = append(p.keys, aws.ToString(in.Key))
	p.bodies = append(p.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveKey(t *testing.T) {
	tid := int64(7)
	bracket := models.BracketWinners
	round, slot := 2, 1

	casual := &models.Match{ID: "abc"}
	casual.CreatedAt = time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "matches/2026-03-14/abc.json", ArchiveKey(casual, ""))

	ranked := &models.Match{ID: "def", TournamentID: &tid, Bracket: &bracket, Round: &round, Slot: &slot}
	assert.Equal(t, "tournaments/spring-cup-2026-7/winners/r2-s1/def.json", ArchiveKey(ranked, "Spring Cup 2026!"))
}

func TestArchiveService_ArchiveMatch(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	matches := NewMatchService(db)
	tours := &TournamentService{DB: db, Shuffle: noShuffle}
	tour := newTournament(t, tours, 1, 2)

	created, err := tours.GenerateFirstRound(ctx, tour.ID)
	require.NoError(t, err)
	winner := int64(2)
	require.NoError(t, matches.FinishMatch(ctx, created[0].ID, models.MatchResult{
		Status:       models.MatchStatusFinished,
		Player1Score: 3,
		Player2Score: 11,
		WinnerID:     &winner,
	}))

	putter := &recordingPutter{}
	archive := NewArchiveService(db, &utils.R2Store{Client: putter, Bucket: "matches", CDNBaseURL: "https://cdn.test"})
	require.NoError(t, archive.ArchiveMatch(ctx, created[0].ID))

	require.Len(t, putter.keys, 1)
	assert.Contains(t, putter.keys[0], "tournaments/spring-cup-")
	var doc MatchArchive
	require.NoError(t, json.Unmarshal(putter.bodies[0], &doc))
	assert.Equal(t, "Spring Cup", doc.Tournament)
	assert.Equal(t, 11, doc.Match.Player2Score)

	err = archive.ArchiveMatch(ctx, "8b0f3c4e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, models.ErrMatchNotFound)
}
