package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ravi-anand/chatwave-api/internal/config"
	"github.com/ravi-anand/chatwave-api/internal/handler"
	"github.com/ravi-anand/chatwave-api/internal/middleware"
	"github.com/ravi-anand/chatwave-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	UserHandler     *handler.UserHandler
	ChatHandler     *handler.ChatHandler
	MessageHandler  *handler.MessageHandler
	RealtimeHandler *handler.RealtimeHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.UserHandler != nil {
		api.Post("/user/login", middleware.RateLimit("login", 10, time.Minute))
		deps.UserHandler.Register(api)

		protected := api.Group("", jwtMiddleware)
		deps.UserHandler.RegisterProtected(protected)

		if deps.ChatHandler != nil {
			deps.ChatHandler.Register(protected)
		}
		if deps.MessageHandler != nil {
			protected.Post("/message", middleware.RateLimit("messages", 60, time.Minute))
			deps.MessageHandler.Register(protected)
		}
	}

	// The websocket route carries its own token check; browsers cannot attach
	// headers to the upgrade request.
	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(api)
	}
}
