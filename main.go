package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pong-match-service/config"
	"pong-match-service/events"
	"pong-match-service/game"
	"pong-match-service/handlers"
	"pong-match-service/middleware"
	"pong-match-service/models"
	"pong-match-service/services"
	"pong-match-service/utils"
	"pong-match-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration:\n%v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := db.AutoMigrate(
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Match{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	matchService := services.NewMatchService(db)
	tournamentService := services.NewTournamentService(db)

	opts := game.Options{
		Store:       matchService,
		Bracket:     tournamentService,
		Publisher:   events.NopPublisher{},
		RematchIdle: cfg.RematchIdleTimeout,
	}

	if cfg.NatsURL != "" {
		publisher, err := events.NewNatsPublisher(cfg.NatsURL, cfg.NatsSubjectPrefix)
		if err != nil {
			log.Fatal("failed to initialize NATS publisher:", err)
		}
		defer publisher.Close()
		opts.Publisher = publisher
		log.Printf("✅ Match events published under %q", cfg.NatsSubjectPrefix)
	} else {
		log.Println("⚠️  NATS_URL not set, match events are dropped")
	}

	if cfg.ArchiveEnabled() {
		store, err := utils.NewR2Store(ctx, utils.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2Bucket,
			CDNBaseURL:      cfg.CDNBaseURL,
		})
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		opts.Archiver = services.NewArchiveService(db, store)
	}

	retryWorker := workers.NewResultRetryWorker(matchService, tournamentService, cfg.ResultRetryInterval)
	retryWorker.Start(ctx)
	opts.Backlog = retryWorker

	coordinator := game.NewCoordinator(opts)
	if err := coordinator.StartLiveness(); err != nil {
		log.Fatal("failed to start liveness monitor:", err)
	}

	app := fiber.New()

	// 🔐❗ GLOBAL: Only Gateway requests allowed, no exceptions
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupGameRoutes(app, coordinator)
	handlers.SetupMatchRoutes(app, matchService)
	handlers.SetupTournamentRoutes(app, tournamentService)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Coordinator shutdown: %v", err)
	}
	retryWorker.Flush(shutdownCtx)
	if n := retryWorker.Pending(); n > 0 {
		log.Printf("⚠️  %d match results still unwritten at exit", n)
	}
}
