package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	apperrors "github.com/gmsas95/docsheet/internal/errors"
)

// fail renders an application error with its mapped HTTP status.
func fail(c *fiber.Ctx, err error) error {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return c.Status(apperrors.HTTPStatus(err)).JSON(fiber.Map{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
	}
	return c.Status(apperrors.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

// authMiddleware verifies the bearer token and re-checks the account:
// a token outlives suspension and deletion, the database does not.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		claims, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		user, err := s.auth.Get(claims.Email)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "account no longer exists"})
		}
		if !user.IsActive {
			return c.Status(403).JSON(fiber.Map{"error": "account suspended"})
		}

		c.Locals("email", user.Email)
		c.Locals("role", user.Role)
		return c.Next()
	}
}

func (s *Server) adminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals("role") != "admin" {
			return c.Status(403).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}

func (s *Server) wsUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func currentEmail(c *fiber.Ctx) string {
	email, _ := c.Locals("email").(string)
	return email
}

func isAdmin(c *fiber.Ctx) bool {
	return c.Locals("role") == "admin"
}
