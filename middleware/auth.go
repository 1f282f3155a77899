package middleware

import (
	"log/slog"
	"strings"

	"trivia-duel/utils"

	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the fiber local holding the authenticated username.
const UserIDKey = "user_id"

// JWTAuthMiddleware accepts `Authorization: Bearer <jwt>` and exposes the
// token subject as c.Locals(UserIDKey).
func JWTAuthMiddleware(tokens *utils.TokenIssuer, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}

		userID, err := tokens.Verify(token)
		if err != nil {
			logger.Debug("rejected token", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
