package transport

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler converts unhandled delivery-API errors into the JSON error
// envelope the frontend consumes, logging anything that escapes a handler.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if fiberErr, ok := err.(*fiber.Error); ok {
			status = fiberErr.Code
		}

		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)

		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
