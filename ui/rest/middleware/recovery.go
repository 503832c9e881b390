package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/AzielCF/az-wabot/pkg/error"
)

// errorBody is the wire shape every failed request shares.
type errorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// Recovery turns panics raised by handlers (including the PanicIfNeeded
// convention) into structured JSON errors. Stack traces never reach the
// client.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				body := errorBody{
					ErrorKind: "Internal",
					Message:   fmt.Sprintf("%v", err),
				}
				status := fiber.StatusInternalServerError

				if restErr, ok := err.(pkgError.RestError); ok {
					status = restErr.StatusCode()
					body.ErrorKind = restErr.ErrCode()
					body.Message = restErr.Error()
				} else {
					logrus.Errorf("[REST] Panic recovered: %v", err)
					body.Message = "internal server error"
				}

				_ = ctx.Status(status).JSON(body)
			}
		}()

		return ctx.Next()
	}
}
