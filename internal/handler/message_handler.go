package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/service"
	"github.com/ravi-anand/chatwave-api/internal/utils"
)

// MessageHandler wires the message endpoints.
type MessageHandler struct {
	messages service.MessageService
	logger   zerolog.Logger
}

// NewMessageHandler creates a message handler instance.
func NewMessageHandler(messages service.MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		logger:   logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register binds message routes under the provided router group.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Post("/message", h.send)
	router.Get("/message/:chatId", h.list)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.SendMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "content and chatId are required")
	}

	message, err := h.messages.Send(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) list(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	chatID, err := strconv.ParseUint(c.Params("chatId"), 10, 64)
	if err != nil || chatID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	messages, err := h.messages.ListMessages(requestContext(c), uint(chatID))
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "messages", messages)
}
