package handlers

import (
	"github.com/gofiber/fiber/v2"

	"kosh/internal/repositories"
	"kosh/internal/repositories/cache"
)

type HealthHandler struct {
	cache *cache.CacheService
}

func NewHealthHandler(cacheService *cache.CacheService) *HealthHandler {
	return &HealthHandler{cache: cacheService}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := fiber.Map{"status": "ok"}
	code := fiber.StatusOK

	sqlDB, err := repositories.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		status["database"] = "down"
		code = fiber.StatusServiceUnavailable
	} else {
		status["database"] = "up"
	}

	if h.cache != nil {
		if err := h.cache.HealthCheck(c.Context()); err != nil {
			status["redis"] = "down"
			code = fiber.StatusServiceUnavailable
		} else {
			status["redis"] = "up"
		}
	}

	return c.Status(code).JSON(status)
}
