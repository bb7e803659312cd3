package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	domainErrors "kosh/internal/errors"
)

func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

// Error renders a service error. Domain errors carry their own HTTP
// status and code; anything else is a 500 with the detail kept out of
// the response body.
func Error(c *fiber.Ctx, err error) error {
	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		return c.Status(domainErr.HTTPStatus()).JSON(fiber.Map{
			"success": false,
			"error": fiber.Map{
				"code":    domainErr.Code,
				"message": domainErr.Message,
			},
		})
	}

	logrus.WithFields(logrus.Fields{
		"path":  c.Path(),
		"error": err.Error(),
	}).Error("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    "INTERNAL_ERROR",
			"message": "something went wrong",
		},
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, domainErrors.Validation(message))
}

func Unauthorized(c *fiber.Ctx) error {
	return Error(c, domainErrors.ErrUnauthorized)
}
