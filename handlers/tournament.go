package handlers

import (
	"pong-match-service/middleware"
	"pong-match-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// 🔓 Brackets are public
	app.Get("/tournaments/:id/bracket", tournamentService.GetBracket)

	// 🔐 Authenticated routes
	secured := app.Group("/tournaments", middleware.UserContextMiddleware())
	secured.Post("/", tournamentService.CreateTournament)
	secured.Post("/:id/join", tournamentService.JoinTournament)
	secured.Post("/:id/start", tournamentService.StartTournament)
}
