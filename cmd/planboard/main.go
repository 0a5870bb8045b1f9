package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/planboard/planboard/app/repository"
	"github.com/planboard/planboard/internal/pkg/billing"
	"github.com/planboard/planboard/internal/pkg/cache"
	"github.com/planboard/planboard/internal/pkg/database"
	"github.com/planboard/planboard/internal/pkg/env"
	"github.com/planboard/planboard/internal/pkg/realtime"
	"github.com/planboard/planboard/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		shutdown()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()

	// Billing secrets must be present before we accept any traffic.
	env.RequireEnv(
		"LEMONSQUEEZY_API_KEY",
		"LEMONSQUEEZY_STORE_ID",
		"LEMONSQUEEZY_WEBHOOK_SECRET",
	)

	database.SetupDatabase()
	cache.SetupCache()
	repository.InitGlobalFactory(database.GetDB())

	// Realtime push channel for payment events
	hub := realtime.NewHub()
	go hub.Run()

	// Hourly expiry sweeper, independent of inbound webhook traffic
	sweeper := billing.NewSweeper(billing.NewServiceFromDB(database.GetDB()), billing.DefaultSweepInterval)
	sweeper.Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "PlanBoard",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app, hub)

	shutdown := func() {
		sweeper.Stop()
		hub.Stop()
		if err := database.CloseDatabase(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}

	return app, shutdown
}
