package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"kosh/internal/config"
	"kosh/internal/repositories"
	"kosh/internal/routes"
)

func main() {
	config.LoadEnv()
	setupLogging()

	if err := repositories.InitDB(); err != nil {
		logrus.WithError(err).Fatal("database initialization failed")
	}
	defer func() {
		if sqlDB, err := repositories.DB.DB(); err == nil {
			sqlDB.Close()
		}
		if repositories.CacheService != nil {
			repositories.CacheService.Close()
		}
	}()

	app := fiber.New(fiber.Config{
		AppName: "kosh",
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE",
	}))

	// Throttle the credential endpoints.
	for _, path := range []string{"/api/register", "/api/login"} {
		app.Use(path, limiter.New(limiter.Config{
			Max:        config.GetIntEnv("AUTH_RATE_LIMIT", 5),
			Expiration: time.Minute,
		}))
	}

	routes.SetupRoutes(app)

	addr := ":" + config.GetEnv("PORT", "3000")
	logrus.WithField("addr", addr).Info("server starting")
	if err := app.Listen(addr); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}

func setupLogging() {
	if config.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logrus.SetLevel(logrus.DebugLevel)
	}
}
