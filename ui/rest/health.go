package rest

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/AzielCF/az-wabot/usecase"
)

type HealthChecker interface {
	Check(ctx context.Context) usecase.HealthStatus
}

type Health struct {
	Service HealthChecker
}

func InitRestHealth(app fiber.Router, service HealthChecker) Health {
	rest := Health{Service: service}
	app.Get("/health", rest.Check)
	return rest
}

func (handler *Health) Check(c *fiber.Ctx) error {
	status := handler.Service.Check(c.UserContext())
	code := fiber.StatusOK
	if status.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}
