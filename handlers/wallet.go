package handlers

import (
	"game-challenge-system/middleware"
	"game-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/wallet", walletService.GetBalance)
	secured.Get("/wallet/transactions", walletService.GetTransactions)
}
