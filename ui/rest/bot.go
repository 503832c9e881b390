package rest

import (
	"github.com/gofiber/fiber/v2"

	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	"github.com/AzielCF/az-wabot/pkg/utils"
)

type Bot struct {
	Service domainBot.IBotUsecase
}

func InitRestBot(app fiber.Router, service domainBot.IBotUsecase) Bot {
	rest := Bot{Service: service}
	app.Get("/bot-types", rest.ListTypes)
	app.Get("/bots", rest.ListInstances)
	app.Post("/bots", rest.CreateInstance)
	app.Patch("/bots/:id", rest.UpdateInstance)
	app.Delete("/bots/:id", rest.DeleteInstance)
	app.Get("/chats/:id/bots", rest.ListAssignments)
	app.Post("/chats/:id/bots", rest.Assign)
	app.Patch("/chats/:id/bots/:bot_id", rest.UpdateAssignment)
	app.Delete("/chats/:id/bots/:bot_id", rest.Unassign)
	return rest
}

func (handler *Bot) ListTypes(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot types fetched",
		Results: handler.Service.ListTypes(c.UserContext()),
	})
}

func (handler *Bot) ListInstances(c *fiber.Ctx) error {
	instances, err := handler.Service.ListInstances(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot instances fetched",
		Results: instances,
	})
}

func (handler *Bot) CreateInstance(c *fiber.Ctx) error {
	var request domainBot.CreateInstanceRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	instance, err := handler.Service.CreateInstance(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Bot instance created",
		Results: instance,
	})
}

func (handler *Bot) UpdateInstance(c *fiber.Ctx) error {
	var request domainBot.UpdateInstanceRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	instance, err := handler.Service.UpdateInstance(c.UserContext(), c.Params("id"), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot instance updated",
		Results: instance,
	})
}

func (handler *Bot) DeleteInstance(c *fiber.Ctx) error {
	err := handler.Service.DeleteInstance(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot instance deleted",
	})
}

func (handler *Bot) ListAssignments(c *fiber.Ctx) error {
	assignments, err := handler.Service.ListAssignments(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Assignments fetched",
		Results: assignments,
	})
}

func (handler *Bot) Assign(c *fiber.Ctx) error {
	var request domainBot.AssignRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	assignment, err := handler.Service.Assign(c.UserContext(), c.Params("id"), request)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Bot assigned",
		Results: assignment,
	})
}

func (handler *Bot) UpdateAssignment(c *fiber.Ctx) error {
	var request domainBot.UpdateAssignmentRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	assignment, err := handler.Service.UpdateAssignment(c.UserContext(), c.Params("id"), c.Params("bot_id"), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Assignment updated",
		Results: assignment,
	})
}

func (handler *Bot) Unassign(c *fiber.Ctx) error {
	err := handler.Service.Unassign(c.UserContext(), c.Params("id"), c.Params("bot_id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Assignment removed",
	})
}
