package rest

import "github.com/gofiber/fiber/v2"

type registerChatRequest struct {
	JID string `json:"jid"`
}

// badRequest reports a malformed body without going through the panic
// recovery path.
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error_kind": "BadInput",
		"message":    message,
	})
}
