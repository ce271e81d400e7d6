package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ravi-anand/chatwave-api/internal/middleware"
	"github.com/ravi-anand/chatwave-api/internal/utils"
	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case apperrors.CodeUnauthenticated, apperrors.CodeTokenMismatch:
		return fiber.StatusUnauthorized
	case apperrors.CodePermissionDenied:
		return fiber.StatusForbidden
	case apperrors.CodeNotFound:
		return fiber.StatusNotFound
	case apperrors.CodeAlreadyExists:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError translates a service error into the response envelope. Internal
// causes are logged but never leaked to the client.
func respondError(c *fiber.Ctx, logger *zerolog.Logger, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := statusForCode(appErr.Code)
		if status >= fiber.StatusInternalServerError {
			logger.Error().Err(err).Msg("request failed")
			return utils.SendError(c, status, "internal server error")
		}
		return utils.SendError(c, status, appErr.Message)
	}

	logger.Error().Err(err).Msg("request failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
