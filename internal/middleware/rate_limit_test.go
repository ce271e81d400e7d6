package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/ravi-anand/chatwave-api/internal/middleware"
)

func performFrom(t *testing.T, app *fiber.App, ip string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("X-Forwarded-For", ip)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp.StatusCode
}

func TestRateLimitKeysUnauthenticatedByIP(t *testing.T) {
	app := fiber.New(fiber.Config{ProxyHeader: "X-Forwarded-For"})
	app.Post("/login", middleware.RateLimit("login", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	require.Equal(t, fiber.StatusOK, performFrom(t, app, "10.0.0.1"))
	require.Equal(t, fiber.StatusTooManyRequests, performFrom(t, app, "10.0.0.1"))

	// another client keeps its own bucket
	require.Equal(t, fiber.StatusOK, performFrom(t, app, "10.0.0.2"))
}

func TestRateLimitKeysAuthenticatedByUser(t *testing.T) {
	app := fiber.New(fiber.Config{ProxyHeader: "X-Forwarded-For"})

	var userID uint
	app.Post("/login",
		func(c *fiber.Ctx) error {
			c.Locals("user_id", userID)
			return c.Next()
		},
		middleware.RateLimit("messages", 1, time.Minute),
		func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		},
	)

	// same IP, different users: separate buckets
	userID = 1
	require.Equal(t, fiber.StatusOK, performFrom(t, app, "10.0.0.1"))
	require.Equal(t, fiber.StatusTooManyRequests, performFrom(t, app, "10.0.0.1"))

	userID = 2
	require.Equal(t, fiber.StatusOK, performFrom(t, app, "10.0.0.1"))
}
