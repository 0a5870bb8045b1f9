package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/planboard/planboard/app/controllers"
	"github.com/planboard/planboard/internal/pkg/billing"
	"github.com/planboard/planboard/internal/pkg/database"
	"github.com/planboard/planboard/internal/pkg/env"
	"github.com/planboard/planboard/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	cachePort, _ := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage: redis.New(redis.Config{
			Host: env.GetEnv("CACHE_HOST", "localhost"),
			Port: cachePort,
		}),
	}))

	v1 := api.Group("/v1", middleware.RequireLogin)

	billingSvc := billing.NewServiceFromDB(database.GetDB())

	v1.Get("/billing/products", controllers.HandleBillingProducts)
	v1.Get("/billing/subscription", controllers.HandleBillingSubscription)
	v1.Get("/billing/orders", controllers.HandleBillingOrders)
	v1.Post("/billing/subscription/cancel", controllers.HandleBillingCancel)

	// Competitor tracking is the premium feature behind the gate
	competitors := v1.Group("/competitors", middleware.RequireActiveSubscription(billingSvc))
	competitors.Get("/", controllers.HandleCompetitorList)
	competitors.Post("/", controllers.HandleCompetitorCreate)
	competitors.Delete("/:id", controllers.HandleCompetitorDelete)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
