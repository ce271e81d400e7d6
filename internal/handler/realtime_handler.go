package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ravi-anand/chatwave-api/internal/auth"
	"github.com/ravi-anand/chatwave-api/internal/middleware"
	"github.com/ravi-anand/chatwave-api/internal/repository"
	"github.com/ravi-anand/chatwave-api/internal/service"
)

// RealtimeHandler upgrades authenticated clients onto the fanout router.
type RealtimeHandler struct {
	realtime service.RealtimeService
	tokens   *auth.TokenManager
	users    repository.UserRepository
	logger   zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(realtime service.RealtimeService, tokens *auth.TokenManager, users repository.UserRepository, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		realtime: realtime,
		tokens:   tokens,
		users:    users,
		logger:   logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route. Browsers cannot set headers on the
// upgrade request, so the token is also accepted as a query parameter.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		tokenString := strings.TrimSpace(c.Query("token"))
		if tokenString == "" {
			tokenString = middleware.BearerToken(c)
		}
		if tokenString == "" {
			return fiber.ErrUnauthorized
		}

		userID, err := h.tokens.VerifyAccess(tokenString)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		if _, err := h.users.GetByID(c.UserContext(), userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.ErrUnauthorized
			}
			return fiber.ErrInternalServerError
		}

		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))

		c.Locals("ws_user_id", userID)
		c.Locals("ws_correlation_id", middleware.GetCorrelationID(c))
		c.Locals("ws_ctx", ctx)

		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("ws_user_id").(uint)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"))
		_ = conn.Close()
		return
	}

	correlation, _ := conn.Locals("ws_correlation_id").(string)
	baseCtx, _ := conn.Locals("ws_ctx").(context.Context)

	opts := service.RealtimeConnectionOptions{
		UserID:        userID,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Uint("user_id", userID).Str("correlation_id", correlation).Msg("realtime connection established")
	h.realtime.ServeConnection(conn, opts)
	h.logger.Info().Uint("user_id", userID).Msg("realtime connection closed")
}
