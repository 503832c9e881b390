package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AzielCF/az-wabot/pkg/mediajobs"
	"github.com/AzielCF/az-wabot/pkg/utils"
	"github.com/AzielCF/az-wabot/processor"
)

// Monitoring exposes live internals for operators: the media job limiter
// and the chat poller counters.
type Monitoring struct {
	Media *mediajobs.Limiter
	Proc  *processor.Processor
}

func InitRestMonitoring(app fiber.Router, media *mediajobs.Limiter, proc *processor.Processor) Monitoring {
	rest := Monitoring{Media: media, Proc: proc}
	app.Get("/monitor/media-pool", rest.MediaPool)
	app.Get("/monitor/processor", rest.Processor)
	return rest
}

func (handler *Monitoring) MediaPool(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Media pool stats",
		Results: handler.Media.GetStats(),
	})
}

func (handler *Monitoring) Processor(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Processor stats",
		Results: handler.Proc.GetStats(),
	})
}
