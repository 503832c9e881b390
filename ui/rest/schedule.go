package rest

import (
	"github.com/gofiber/fiber/v2"

	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
	"github.com/AzielCF/az-wabot/pkg/utils"
)

type Schedule struct {
	Service domainSchedule.IScheduleUsecase
}

func InitRestSchedule(app fiber.Router, service domainSchedule.IScheduleUsecase) Schedule {
	rest := Schedule{Service: service}
	app.Get("/schedules", rest.List)
	app.Post("/schedules", rest.Create)
	app.Patch("/schedules/:id", rest.Update)
	app.Delete("/schedules/:id", rest.Delete)
	app.Post("/schedules/:id/fire", rest.Fire)
	return rest
}

func (handler *Schedule) List(c *fiber.Ctx) error {
	schedules, err := handler.Service.List(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Schedules fetched",
		Results: schedules,
	})
}

func (handler *Schedule) Create(c *fiber.Ctx) error {
	var request domainSchedule.CreateRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	schedule, err := handler.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Schedule created",
		Results: schedule,
	})
}

func (handler *Schedule) Update(c *fiber.Ctx) error {
	var request domainSchedule.UpdateRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	schedule, err := handler.Service.Update(c.UserContext(), c.Params("id"), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Schedule updated",
		Results: schedule,
	})
}

func (handler *Schedule) Delete(c *fiber.Ctx) error {
	err := handler.Service.Delete(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Schedule deleted",
	})
}

func (handler *Schedule) Fire(c *fiber.Ctx) error {
	err := handler.Service.FireNow(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Schedule fire requested",
	})
}
