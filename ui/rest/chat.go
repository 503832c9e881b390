package rest

import (
	"github.com/gofiber/fiber/v2"

	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	"github.com/AzielCF/az-wabot/pkg/utils"
)

type Chat struct {
	Service domainChat.IChatUsecase
}

func InitRestChat(app fiber.Router, service domainChat.IChatUsecase) Chat {
	rest := Chat{Service: service}
	app.Get("/chats", rest.List)
	app.Post("/chats", rest.Register)
	app.Post("/chats/sync", rest.Sync)
	app.Delete("/chats/:id", rest.Delete)
	app.Get("/chats/:id/messages", rest.Messages)
	return rest
}

func (handler *Chat) List(c *fiber.Ctx) error {
	chats, err := handler.Service.List(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Chats fetched",
		Results: chats,
	})
}

func (handler *Chat) Register(c *fiber.Ctx) error {
	var request registerChatRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	chat, err := handler.Service.Register(c.UserContext(), request.JID)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Chat registered",
		Results: chat,
	})
}

func (handler *Chat) Sync(c *fiber.Ctx) error {
	chats, err := handler.Service.Sync(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Chats synced",
		Results: chats,
	})
}

func (handler *Chat) Delete(c *fiber.Ctx) error {
	err := handler.Service.Delete(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Chat deleted",
	})
}

func (handler *Chat) Messages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	rows, err := handler.Service.Messages(c.UserContext(), c.Params("id"), limit)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Messages fetched",
		Results: rows,
	})
}
