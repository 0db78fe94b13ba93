package handlers

import (
	"game-challenge-system/middleware"
	"game-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService) {
	// 🔓 Catalog reads are public (behind the gateway token)
	app.Get("/games", gameService.ListGames)

	// 🔒 Admin-only catalog management
	secured := app.Group("/", middleware.UserContextMiddleware())
	admin := secured.Group("/admin")
	admin.Post("/games", gameService.RegisterGame)
	admin.Patch("/games/:id/deactivate", gameService.DeactivateGame)
}
