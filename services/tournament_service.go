package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"pong-match-service/middleware"
	"pong-match-service/models"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentNotOpen  = errors.New("tournament is not open")
	ErrNotEnoughPlayers   = errors.New("not enough participants")
	ErrAlreadyJoined      = errors.New("already joined")
)

// TournamentService owns bracket state: sign-up, first-round seeding, advancement
// after every decided slot and the final status flip.
type TournamentService struct {
	DB *gorm.DB

	// Shuffle orders participants before seeding.
	Shuffle func(n int, swap func(i, j int))
}

func NewTournamentService(db *gorm.DB) *TournamentService {
	return &TournamentService{DB: db, Shuffle: rand.Shuffle}
}

// Create opens a tournament for sign-ups.
func (s *TournamentService) Create(ctx context.Context, name string) (*models.Tournament, error) {
	t := &models.Tournament{Name: name, Status: models.TournamentStatusOpen}
	if err := s.DB.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	return t, nil
}

// lockTournament loads the tournament row FOR UPDATE; every bracket mutation goes
// through it so advancement is serialized per tournament.
func lockTournament(tx *gorm.DB, id int64) (*models.Tournament, error) {
	var t models.Tournament
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock tournament %d: %w", id, err)
	}
	return &t, nil
}

// AddParticipant signs userID up for an OPEN tournament.
func (s *TournamentService) AddParticipant(ctx context.Context, tournamentID, userID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != models.TournamentStatusOpen {
			return ErrTournamentNotOpen
		}

		var count int64
		if err := tx.Model(&models.TournamentParticipant{}).
			Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if count > 0 {
			return ErrAlreadyJoined
		}

		p := &models.TournamentParticipant{TournamentID: tournamentID, UserID: userID}
		if err := tx.Create(p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyJoined
			}
			return fmt.Errorf("failed to add participant: %w", err)
		}
		return nil
	})
}

// GenerateFirstRound seeds round 1 of the WINNERS bracket from the shuffled
// participants and moves the tournament to ONGOING. With an odd count the last
// participant gets a FINISHED bye record in the last slot and is advanced at once.
func (s *TournamentService) GenerateFirstRound(ctx context.Context, tournamentID int64) ([]models.Match, error) {
	var created []models.Match
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != models.TournamentStatusOpen {
			return ErrTournamentNotOpen
		}

		var participants []models.TournamentParticipant
		if err := tx.Where("tournament_id = ?", tournamentID).Order("joined_at ASC, id ASC").Find(&participants).Error; err != nil {
			return fmt.Errorf("failed to load participants: %w", err)
		}
		if len(participants) < 2 {
			return ErrNotEnoughPlayers
		}

		ids := make([]int64, len(participants))
		for i, p := range participants {
			ids[i] = p.UserID
		}
		s.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		coord := models.SlotCoordinate{TournamentID: tournamentID, Bracket: models.BracketWinners, Round: 1, Slot: 1}
		for i := 0; i+1 < len(ids); i += 2 {
			m := newSlotMatch(coord, ids[i], ids[i+1])
			if err := tx.Create(m).Error; err != nil {
				return fmt.Errorf("failed to create match for slot %s: %w", coord, err)
			}
			created = append(created, *m)
			coord.Slot++
		}

		if err := tx.Model(t).Update("status", models.TournamentStatusOngoing).Error; err != nil {
			return fmt.Errorf("failed to start tournament: %w", err)
		}

		if len(ids)%2 == 1 {
			last := ids[len(ids)-1]
			bye := newByeMatch(coord, last)
			if err := tx.Create(bye).Error; err != nil {
				return fmt.Errorf("failed to create bye for slot %s: %w", coord, err)
			}
			created = append(created, *bye)
			log.Printf("[Tournament] %d: user %d gets a bye in %s", tournamentID, last, coord)
			if err := s.advanceTx(tx, coord, last); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [Tournament] %d started with %d first-round records", tournamentID, len(created))
	return created, nil
}

func newByeMatch(slot models.SlotCoordinate, winnerID int64) *models.Match {
	m := newSlotMatch(slot, winnerID, 0)
	m.Status = models.MatchStatusFinished
	m.WinnerID = &winnerID
	return m
}

// roundOneSlots counts the distinct first-round slots of a bracket.
func roundOneSlots(tx *gorm.DB, tournamentID int64, bracket string) (int, error) {
	var n int64
	err := tx.Model(&models.Match{}).
		Where("tournament_id = ? AND bracket = ? AND round = 1", tournamentID, bracket).
		Distinct("slot").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count first-round slots: %w", err)
	}
	return int(n), nil
}

// expectedSlots is the slot count of round r given the first round's count.
func expectedSlots(firstRound, round int) int {
	n := firstRound
	for r := 1; r < round; r++ {
		n = (n + 1) / 2
	}
	return n
}

// AdvanceBracket moves winnerID out of slot. The next-round record is created only
// once both feeders are decided, and never twice. The tournament finishes when the
// final is decided and nothing is still being played.
func (s *TournamentService) AdvanceBracket(ctx context.Context, slot models.SlotCoordinate, winnerID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTournament(tx, slot.TournamentID)
		if err != nil {
			return err
		}
		if t.Status == models.TournamentStatusFinished {
			return nil
		}
		if err := s.advanceTx(tx, slot, winnerID); err != nil {
			return err
		}
		_, err = finishIfCompleteTx(tx, t)
		return err
	})
}

func (s *TournamentService) advanceTx(tx *gorm.DB, slot models.SlotCoordinate, winnerID int64) error {
	firstRound, err := roundOneSlots(tx, slot.TournamentID, slot.Bracket)
	if err != nil {
		return err
	}
	expected := expectedSlots(firstRound, slot.Round)
	if expected <= 1 {
		return nil
	}

	next := slot.Next()
	existing, err := latestForSlot(tx, next)
	if err != nil {
		return fmt.Errorf("failed to load slot %s: %w", next, err)
	}
	if existing != nil {
		return nil
	}

	sibling := slot.Sibling()
	if sibling.Slot > expected {
		// nobody feeds the other half of next; carry the winner through
		bye := newByeMatch(next, winnerID)
		if err := tx.Create(bye).Error; err != nil {
			return fmt.Errorf("failed to create bye for slot %s: %w", next, err)
		}
		log.Printf("[Tournament] %d: user %d advances to %s on a bye", slot.TournamentID, winnerID, next)
		return s.advanceTx(tx, next, winnerID)
	}

	feeder, err := latestForSlot(tx, sibling)
	if err != nil {
		return fmt.Errorf("failed to load slot %s: %w", sibling, err)
	}
	if feeder == nil || feeder.Status != models.MatchStatusFinished || feeder.WinnerID == nil {
		return nil
	}

	p1, p2 := winnerID, *feeder.WinnerID
	if !slot.FeedsPlayerOne() {
		p1, p2 = p2, p1
	}
	m := newSlotMatch(next, p1, p2)
	if err := tx.Create(m).Error; err != nil {
		return fmt.Errorf("failed to create match for slot %s: %w", next, err)
	}
	log.Printf("[Tournament] %d: %s is %d vs %d", slot.TournamentID, next, p1, p2)
	return nil
}

// FinishIfComplete flips the tournament to FINISHED when every record is FINISHED or
// DRAW, nothing is ONGOING and the final has a winner.
func (s *TournamentService) FinishIfComplete(ctx context.Context, tournamentID int64) (bool, error) {
	var finished bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status == models.TournamentStatusFinished {
			finished = true
			return nil
		}
		finished, err = finishIfCompleteTx(tx, t)
		return err
	})
	return finished, err
}

func finishIfCompleteTx(tx *gorm.DB, t *models.Tournament) (bool, error) {
	var ongoing int64
	if err := tx.Model(&models.Match{}).
		Where("tournament_id = ? AND status = ?", t.ID, models.MatchStatusOngoing).
		Count(&ongoing).Error; err != nil {
		return false, fmt.Errorf("failed to count ongoing matches: %w", err)
	}
	if ongoing > 0 {
		return false, nil
	}

	var final models.Match
	err := tx.Where("tournament_id = ? AND bracket = ? AND status = ?", t.ID, models.BracketWinners, models.MatchStatusFinished).
		Order("round DESC, created_at DESC").
		First(&final).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load final: %w", err)
	}

	firstRound, err := roundOneSlots(tx, t.ID, models.BracketWinners)
	if err != nil {
		return false, err
	}
	if final.Round == nil || expectedSlots(firstRound, *final.Round) > 1 || final.WinnerID == nil {
		return false, nil
	}

	now := time.Now()
	if err := tx.Model(t).Updates(map[string]interface{}{
		"status":      models.TournamentStatusFinished,
		"winner_id":   *final.WinnerID,
		"finished_at": now,
	}).Error; err != nil {
		return false, fmt.Errorf("failed to finish tournament %d: %w", t.ID, err)
	}
	log.Printf("🏆 [Tournament] %d finished, winner %d", t.ID, *final.WinnerID)
	return true, nil
}

// Bracket loads a tournament with its participants and every match attempt.
func (s *TournamentService) Bracket(ctx context.Context, tournamentID int64) (*models.Tournament, error) {
	var t models.Tournament
	err := s.DB.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("Matches", func(db *gorm.DB) *gorm.DB { return db.Order("round ASC, slot ASC, created_at ASC") }).
		First(&t, "id = ?", tournamentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bracket: %w", err)
	}
	return &t, nil
}

func tournamentIDParam(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

func tournamentErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrTournamentNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAlreadyJoined):
		return fiber.StatusConflict
	case errors.Is(err, ErrTournamentNotOpen), errors.Is(err, ErrNotEnoughPlayers):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// CreateTournament handles POST /tournaments.
func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	if middleware.UserID(c) == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	t, err := s.Create(c.UserContext(), name)
	if err != nil {
		log.Printf("[Tournament] %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// JoinTournament handles POST /tournaments/:id/join.
func (s *TournamentService) JoinTournament(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	id, ok := tournamentIDParam(c)
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "invalid tournament id"})
	}

	if err := s.AddParticipant(c.UserContext(), id, userID); err != nil {
		status := tournamentErrorStatus(err)
		if status == fiber.StatusInternalServerError {
			log.Printf("[Tournament] join %d by %d failed: %v", id, userID, err)
			return c.Status(status).JSON(fiber.Map{"error": "database error"})
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// StartTournament handles POST /tournaments/:id/start.
func (s *TournamentService) StartTournament(c *fiber.Ctx) error {
	if middleware.UserID(c) == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	id, ok := tournamentIDParam(c)
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "invalid tournament id"})
	}

	matches, err := s.GenerateFirstRound(c.UserContext(), id)
	if err != nil {
		status := tournamentErrorStatus(err)
		if status == fiber.StatusInternalServerError {
			log.Printf("[Tournament] start %d failed: %v", id, err)
			return c.Status(status).JSON(fiber.Map{"error": "database error"})
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"matches": matches})
}

// GetBracket handles GET /tournaments/:id/bracket.
func (s *TournamentService) GetBracket(c *fiber.Ctx) error {
	id, ok := tournamentIDParam(c)
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "invalid tournament id"})
	}
	t, err := s.Bracket(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrTournamentNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(t)
}
