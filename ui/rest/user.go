package rest

import (
	"github.com/gofiber/fiber/v2"

	domainUser "github.com/AzielCF/az-wabot/domains/user"
	"github.com/AzielCF/az-wabot/pkg/utils"
)

type User struct {
	Service domainUser.IUserUsecase
}

func InitRestUser(app fiber.Router, service domainUser.IUserUsecase) User {
	rest := User{Service: service}
	app.Post("/auth/login", rest.Login)
	return rest
}

func (handler *User) Login(c *fiber.Ctx) error {
	var request domainUser.LoginRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, "invalid request body")
	}

	response, err := handler.Service.Login(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Login success",
		Results: response,
	})
}
