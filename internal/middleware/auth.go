// Package middleware provides the authentication and authorization layers
// for the HTTP API.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"kosh/internal/models"
	"kosh/internal/utils"
)

// Auth validates the Bearer token and stores the claims in the request
// context under "claims".
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return utils.Unauthorized(c)
		}

		claims, err := utils.ParseJWT(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			return utils.Unauthorized(c)
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// RequireAdmin allows only admin tokens past.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return utils.Unauthorized(c)
		}
		if claims.Role != models.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   fiber.Map{"code": "FORBIDDEN", "message": "admin access required"},
			})
		}
		return c.Next()
	}
}

// Claims returns the authenticated claims, or nil on an unauthenticated
// request.
func Claims(c *fiber.Ctx) *models.UserClaims {
	claims, _ := c.Locals("claims").(*models.UserClaims)
	return claims
}
