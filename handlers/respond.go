package handlers

import (
	"errors"
	"log"

	"casual-game-core/apperrors"
	"casual-game-core/middleware"

	"github.com/gofiber/fiber/v2"
)

// respondError writes {"error": code, "message": ...}. Unexpected failures are logged
// and answered with a generic 500.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		log.Printf("❌ [HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   apperrors.CodeInternal,
			"message": "internal error",
		})
	}
	return c.Status(apperrors.HTTPStatus(appErr.Code)).JSON(fiber.Map{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return respondError(c, apperrors.NewAppError(apperrors.CodeInvalidInput, message, nil))
}

// parse decodes the JSON body into a fresh T.
func parse[T any](c *fiber.Ctx) (T, error) {
	var body T
	if err := c.BodyParser(&body); err != nil {
		return body, apperrors.NewAppError(apperrors.CodeInvalidInput, "invalid request body", err)
	}
	return body, nil
}

func caller(c *fiber.Ctx) string { return middleware.UserID(c) }

func idempotencyKey(c *fiber.Ctx, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.Get("Idempotency-Key")
}
