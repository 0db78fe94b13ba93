package handlers

import (
	"game-challenge-system/middleware"
	"game-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChallengeRoutes(app *fiber.App, challengeService *services.ChallengeService,
	interactionService *services.InteractionService, notifyService *services.NotifyService,
	authClient *services.AuthServiceClient) {

	// 📡 SSE stream authenticates via query token (EventSource cannot set headers)
	app.Get("/challenges/stream", middleware.SSEAuthMiddleware(authClient), notifyService.StreamChallengeEventsSSE)

	// 🔐 Everything else requires gateway user context
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Lifecycle
	secured.Post("/challenges", challengeService.CreateChallenge)
	secured.Get("/challenges", challengeService.GetUserChallenges)
	secured.Get("/challenges/:id", challengeService.GetChallenge)
	secured.Post("/challenges/:id/accept", challengeService.AcceptChallenge)
	secured.Post("/challenges/:id/reject", challengeService.RejectChallenge)
	secured.Post("/challenges/:id/cancel", challengeService.CancelChallenge)

	// Play
	secured.Post("/challenges/:id/session", challengeService.StartGameSession)
	secured.Post("/challenges/:id/score", challengeService.SubmitChallengeScore)

	// Interactions (chat + reactions, once accepted)
	secured.Get("/challenges/:id/interactions", interactionService.GetChallengeInteractions)
	secured.Post("/challenges/:id/messages", interactionService.PostChallengeMessage)
	secured.Post("/challenges/:id/reactions", interactionService.ToggleChallengeReaction)
}
