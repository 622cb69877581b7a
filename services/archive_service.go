package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"pong-match-service/models"
	"pong-match-service/utils"
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ArchiveService writes a JSON summary of every persisted match result to object storage.
type ArchiveService struct {
	DB    *gorm.DB
	Store *utils.R2Store
}

func NewArchiveService(db *gorm.DB, store *utils.R2Store) *ArchiveService {
	return &ArchiveService{DB: db, Store: store}
}

// MatchArchive is the archived document.
type MatchArchive struct {
	Match      models.Match `json:"match"`
	Tournament string       `json:"tournament,omitempty"`
	ArchivedAt time.Time    `json:"archived_at"`
}

// ArchiveKey names the object for a match: casual matches by day, tournament matches
// under the tournament's slugged name and their bracket position.
func ArchiveKey(m *models.Match, tournamentName string) string {
	if slot, ok := m.Coordinate(); ok {
		return fmt.Sprintf("tournaments/%s-%d/%s/r%d-s%d/%s.json",
			slug.Make(tournamentName), slot.TournamentID, slug.Make(slot.Bracket), slot.Round, slot.Slot, m.ID)
	}
	return fmt.Sprintf("matches/%s/%s.json", m.CreatedAt.UTC().Format("2006-01-02"), m.ID)
}

// ArchiveMatch uploads the current state of matchID.
func (s *ArchiveService) ArchiveMatch(ctx context.Context, matchID string) error {
	var m models.Match
	if err := s.DB.WithContext(ctx).First(&m, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("match %s: %w", matchID, models.ErrMatchNotFound)
		}
		return fmt.Errorf("failed to load match %s: %w", matchID, err)
	}

	doc := MatchArchive{Match: m, ArchivedAt: time.Now().UTC()}
	if m.TournamentID != nil {
		var t models.Tournament
		if err := s.DB.WithContext(ctx).Select("id", "name").First(&t, "id = ?", *m.TournamentID).Error; err != nil {
			return fmt.Errorf("failed to load tournament %d: %w", *m.TournamentID, err)
		}
		doc.Tournament = t.Name
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode archive: %w", err)
	}
	key := ArchiveKey(&m, doc.Tournament)
	url, err := s.Store.PutBytes(ctx, key, body, "application/json")
	if err != nil {
		return err
	}
	log.Printf("[Archive] match %s stored at %s", matchID, url)
	return nil
}
