// handlers/match.go
package handlers

import (
	"pong-match-service/middleware"
	"pong-match-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService) {
	app.Get("/leaderboard", matchService.GetLeaderboard)

	// 🔐 History is scoped to the caller
	secured := app.Group("/matches", middleware.UserContextMiddleware())
	secured.Get("/", matchService.ListMyMatches)
	secured.Get("/:id", matchService.GetMyMatch)
}
