package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenMiddleware guards admin routes with a shared secret sent in
// X-Service-Token. An empty expected token disables the routes entirely.
func ServiceTokenMiddleware(expected string, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin routes are disabled"})
		}

		got := c.Get("X-Service-Token")
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "service token missing"})
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			logger.Warn("invalid service token", "path", c.Path(), "ip", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid service token"})
		}
		return c.Next()
	}
}
