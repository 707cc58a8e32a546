package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/guildgate/guildgate/internal/verification"
)

// RegisterVerificationRoutes wires the bot-facing verification API.
func RegisterVerificationRoutes(app *fiber.App, h *verification.Handler, rateLimiter fiber.Handler) {
	api := app.Group("/api/v1/verification")
	api.Post("/start", rateLimiter, h.StartChallenge)
	api.Post("/answer", h.SubmitAnswer)
	api.Post("/identity", rateLimiter, h.BeginIdentityProof)
	api.Get("/stats", h.Stats)
}
