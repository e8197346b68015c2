// handlers/match_routes.go
package handlers

import (
	"truenumber-arena/middleware"
	"truenumber-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService) {
	// 🔐 All match routes require user context (userID, roles) from the Gateway.
	secured := app.Group("/matches", middleware.UserContextMiddleware())

	secured.Post("/", matchService.HandleCreateMatch)
	secured.Get("/", matchService.HandleListMatches)

	// Fixed paths must be registered before the :id wildcard.
	secured.Get("/history", matchService.HandleHistory)
	secured.Get("/balance", matchService.HandleBalance)

	secured.Post("/:id/join", matchService.HandleJoinMatch)
	secured.Post("/:id/turn", matchService.HandleSubmitTurn)
	secured.Get("/:id", matchService.HandleGetMatch)
}
