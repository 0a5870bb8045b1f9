package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/planboard/planboard/internal/pkg/realtime"
)

// Router installs a set of routes onto the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, hub *realtime.Hub) {
	// HttpRouter goes first: it registers the global user context
	// middleware the API routes depend on.
	setup(app, NewHttpRouter(hub), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
