package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ravi-anand/chatwave-api/internal/auth"
	"github.com/ravi-anand/chatwave-api/internal/repository"
	"github.com/ravi-anand/chatwave-api/internal/utils"
)

// JWTProtected returns a middleware that validates access tokens and binds
// the authenticated user id to the request. Tokens whose subject no longer
// exists are rejected, so deleting an account invalidates its outstanding
// access tokens immediately.
func JWTProtected(tokens *auth.TokenManager, users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := BearerToken(c)
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		userID, err := tokens.VerifyAccess(tokenString)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		if _, err := users.GetByID(c.UserContext(), userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.SendError(c, fiber.StatusUnauthorized, "user no longer exists")
			}
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to resolve user")
		}

		c.Locals("user_id", userID)

		return c.Next()
	}
}

// BearerToken extracts the token from the Authorization header, returning
// an empty string when the header is missing or malformed.
func BearerToken(c *fiber.Ctx) string {
	authorization := strings.TrimSpace(c.Get("Authorization"))
	if authorization == "" {
		return ""
	}

	const bearer = "bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
		return ""
	}

	return strings.TrimSpace(authorization[len(bearer):])
}
