package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/guildgate/guildgate/internal/middleware"
	"github.com/guildgate/guildgate/internal/verification"
)

// RegisterWebRoutes wires the external completion channel: the OAuth2
// redirect pair and the polling/creation API.
func RegisterWebRoutes(app *fiber.App, h *verification.WebHandler, d Deps) {
	app.Get("/verify", h.Verify)
	app.Get("/callback", h.Callback)
	app.Get("/api/check-verification/:state", h.CheckVerification)

	create := app.Group("/api/create-verification")
	if d.Cache != nil {
		create.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	create.Post("", h.CreateVerification)
}
