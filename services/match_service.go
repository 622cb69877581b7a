package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"pong-match-service/middleware"
	"pong-match-service/models"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchService persists match records for the game coordinator and serves match history.
type MatchService struct {
	DB *gorm.DB
}

func NewMatchService(db *gorm.DB) *MatchService {
	return &MatchService{DB: db}
}

// CreateMatch inserts an ONGOING record for an open-queue pairing.
func (s *MatchService) CreateMatch(ctx context.Context, player1, player2 int64) (*models.Match, error) {
	match := &models.Match{
		ID:        uuid.NewString(),
		Status:    models.MatchStatusOngoing,
		Player1ID: player1,
		Player2ID: player2,
	}
	if err := s.DB.WithContext(ctx).Create(match).Error; err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return match, nil
}

func slotScope(slot models.SlotCoordinate) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tournament_id = ? AND bracket = ? AND round = ? AND slot = ?",
			slot.TournamentID, slot.Bracket, slot.Round, slot.Slot)
	}
}

// latestForSlot returns the newest attempt recorded for slot, or nil.
func latestForSlot(tx *gorm.DB, slot models.SlotCoordinate) (*models.Match, error) {
	var latest models.Match
	err := tx.Scopes(slotScope(slot)).Order("created_at DESC").First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &latest, nil
}

func newSlotMatch(slot models.SlotCoordinate, player1, player2 int64) *models.Match {
	bracket := slot.Bracket
	round := slot.Round
	pos := slot.Slot
	tid := slot.TournamentID
	return &models.Match{
		ID:           uuid.NewString(),
		Status:       models.MatchStatusOngoing,
		Player1ID:    player1,
		Player2ID:    player2,
		TournamentID: &tid,
		Bracket:      &bracket,
		Round:        &round,
		Slot:         &pos,
	}
}

// ClaimSlot resolves the record a tournament pair should play for slot. The newest
// attempt decides: FINISHED refuses, ONGOING is reused by its own pair, a DRAW or an
// empty slot gets a fresh attempt. Player order always follows the stored record.
func (s *MatchService) ClaimSlot(ctx context.Context, slot models.SlotCoordinate, player1, player2 int64) (*models.Match, error) {
	var claimed *models.Match
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		latest, err := latestForSlot(tx, slot)
		if err != nil {
			return fmt.Errorf("failed to load slot %s: %w", slot, err)
		}

		if latest != nil {
			if latest.Status == models.MatchStatusFinished {
				return models.ErrSlotFinished
			}
			if !latest.HasPlayers(player1, player2) {
				return models.ErrSlotConflict
			}
			if latest.Status == models.MatchStatusOngoing {
				claimed = latest
				return nil
			}
			// drawn without a rematch on file
			player1, player2 = latest.Player1ID, latest.Player2ID
		}

		claimed = newSlotMatch(slot, player1, player2)
		if err := tx.Create(claimed).Error; err != nil {
			return fmt.Errorf("failed to create match for slot %s: %w", slot, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// FinishMatch mirrors a terminal room outcome onto the record. Writing the same result
// twice is harmless; a record that is already terminal is left alone.
func (s *MatchService) FinishMatch(ctx context.Context, matchID string, result models.MatchResult) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, models.MatchStatusOngoing).
		Updates(map[string]interface{}{
			"status":        result.Status,
			"player1_score": result.Player1Score,
			"player2_score": result.Player2Score,
			"winner_id":     result.WinnerID,
			"duration_ms":   result.DurationMillis(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finish match %s: %w", matchID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Match{}).Where("id = ?", matchID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up match %s: %w", matchID, err)
	}
	if count == 0 {
		return fmt.Errorf("match %s: %w", matchID, models.ErrMatchNotFound)
	}
	return nil
}

// CreateRematch opens the next attempt for a drawn tournament slot, same player order.
func (s *MatchService) CreateRematch(ctx context.Context, matchID string) (*models.Match, error) {
	var prev models.Match
	if err := s.DB.WithContext(ctx).First(&prev, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("match %s: %w", matchID, models.ErrMatchNotFound)
		}
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	slot, ok := prev.Coordinate()
	if !ok {
		return nil, fmt.Errorf("match %s is not a tournament match", matchID)
	}

	rematch := newSlotMatch(slot, prev.Player1ID, prev.Player2ID)
	if err := s.DB.WithContext(ctx).Create(rematch).Error; err != nil {
		return nil, fmt.Errorf("failed to create rematch for %s: %w", matchID, err)
	}
	return rematch, nil
}

// GetMatch loads one record.
func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	if err := s.DB.WithContext(ctx).First(&m, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListMyMatches pages through the caller's matches, newest first.
func (s *MatchService) ListMyMatches(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.Query("size", "20"))
	if size < 1 || size > 50 {
		size = 20
	}

	var matches []models.Match
	err := s.DB.Where("player1_id = ? OR player2_id = ?", userID, userID).
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size + 1).
		Find(&matches).Error
	if err != nil {
		log.Printf("[Match] list for user %d failed: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	hasMore := len(matches) > size
	if hasMore {
		matches = matches[:size]
	}
	return c.JSON(fiber.Map{
		"items":    matches,
		"page":     page,
		"size":     size,
		"has_more": hasMore,
	})
}

// GetMyMatch returns one match the caller played in.
func (s *MatchService) GetMyMatch(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	match, err := s.GetMatch(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, models.ErrMatchNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if match.Player1ID != userID && match.Player2ID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	return c.JSON(match)
}

// LeaderboardEntry is one row of the win table.
type LeaderboardEntry struct {
	UserID int64 `json:"user_id"`
	Wins   int64 `json:"wins"`
}

// Leaderboard returns the ten identities with the most FINISHED wins.
func (s *MatchService) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var rows []LeaderboardEntry
	err := s.DB.WithContext(ctx).
		Model(&models.Match{}).
		Select("winner_id AS user_id, COUNT(*) AS wins").
		Where("status = ? AND winner_id IS NOT NULL", models.MatchStatusFinished).
		Group("winner_id").
		Order("wins DESC, user_id ASC").
		Limit(10).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}
	return rows, nil
}

func (s *MatchService) GetLeaderboard(c *fiber.Ctx) error {
	rows, err := s.Leaderboard(c.UserContext())
	if err != nil {
		log.Printf("[Match] %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(rows)
}
