package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/planboard/planboard/app/controllers"
	"github.com/planboard/planboard/internal/pkg/billing"
	"github.com/planboard/planboard/internal/pkg/database"
	"github.com/planboard/planboard/internal/pkg/middleware"
	"github.com/planboard/planboard/internal/pkg/realtime"
)

type HttpRouter struct {
	hub *realtime.Hub
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply user context middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Wire the billing service and realtime hub into the webhook pipeline
	controllers.InitializeWebhookController(h.hub, billing.NewServiceFromDB(database.GetDB()))

	// Billing provider webhook receiver. Raw body, signature-verified;
	// stays outside the rate-limited /api group so provider retries are
	// never throttled away.
	app.Post("/api/webhooks/lemonsqueezy", controllers.HandleLemonSqueezyWebhook)

	// Realtime push channel
	app.Use("/ws", realtime.Upgrade)
	app.Get("/ws", realtime.Handler(h.hub))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter(hub *realtime.Hub) *HttpRouter {
	return &HttpRouter{hub: hub}
}
