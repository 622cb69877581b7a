package services

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"pong-match-service/models"

	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB is shared by every database test in the package; nil when -short is set or
// no container runtime is available.
var testDB *gorm.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pong"),
		tcpostgres.WithUsername("pong"),
		tcpostgres.WithPassword("pong"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Printf("⚠️  postgres container unavailable, database tests skipped: %v", err)
		os.Exit(m.Run())
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err == nil {
		testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Silent),
		})
	}
	if err == nil {
		err = testDB.AutoMigrate(&models.Tournament{}, &models.TournamentParticipant{}, &models.Match{})
	}
	if err != nil {
		log.Printf("❌ failed to prepare test database: %v", err)
		_ = tc.TerminateContainer(container)
		os.Exit(1)
	}

	code := m.Run()
	_ = tc.TerminateContainer(container)
	os.Exit(code)
}

// freshDB empties every table and returns the shared handle.
func freshDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres not available")
	}
	if err := testDB.Exec("TRUNCATE matches, tournament_participants, tournaments RESTART IDENTITY CASCADE").Error; err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	return testDB
}

// noShuffle keeps sign-up order so brackets are predictable.
func noShuffle(int, func(i, j int)) {}

func newTournament(t *testing.T, svc *TournamentService, players ...int64) *models.Tournament {
	t.Helper()
	ctx := context.Background()
	tour, err := svc.Create(ctx, "Spring Cup")
	if err != nil {
		t.Fatalf("create tournament: %v", err)
	}
	for _, p := range players {
		if err := svc.AddParticipant(ctx, tour.ID, p); err != nil {
			t.Fatalf("add participant %d: %v", p, err)
		}
	}
	return tour
}
