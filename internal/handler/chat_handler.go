package handler

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/service"
	"github.com/ravi-anand/chatwave-api/internal/utils"
)

// ChatHandler wires the chat directory endpoints.
type ChatHandler struct {
	chats  service.ChatService
	logger zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(chats service.ChatService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chats:  chats,
		logger: logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group. All of them
// require authentication.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/chat", h.access)
	router.Get("/chat", h.list)
	router.Post("/chat/group", h.createGroup)
	router.Put("/chat/rename", h.rename)
	router.Put("/chat/groupadd", h.addMember)
	router.Put("/chat/groupremove", h.removeMember)
}

func (h *ChatHandler) access(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.AccessChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "userId is required")
	}

	chat, err := h.chats.AccessChat(requestContext(c), userIDFromContext(c), payload.UserID)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "chat", chat)
}

func (h *ChatHandler) list(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	chats, err := h.chats.ListChats(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "chats", chats)
}

func (h *ChatHandler) createGroup(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.CreateGroupChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "name and users are required")
	}

	// The web client posts the member list as a JSON-encoded string.
	var memberIDs []uint
	if payload.Users != "" {
		if err := json.Unmarshal([]byte(payload.Users), &memberIDs); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "users must be a JSON array of user ids")
		}
	}

	chat, err := h.chats.CreateGroupChat(requestContext(c), userIDFromContext(c), payload.Name, memberIDs)
	if err != nil {
		return respondError(c, logger, err)
	}

	logger.Info().Uint("chat_id", chat.ID).Msg("group chat created")

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "group chat created", chat)
}

func (h *ChatHandler) rename(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.RenameChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "chatId and chatName are required")
	}

	chat, err := h.chats.RenameChat(requestContext(c), payload.ChatID, payload.ChatName)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "chat renamed", chat)
}

func (h *ChatHandler) addMember(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.GroupMemberRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "chatId and userId are required")
	}

	chat, err := h.chats.AddMember(requestContext(c), payload.ChatID, payload.UserID)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "member added", chat)
}

func (h *ChatHandler) removeMember(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.GroupMemberRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "chatId and userId are required")
	}

	chat, err := h.chats.RemoveMember(requestContext(c), userIDFromContext(c), payload.ChatID, payload.UserID)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "member removed", chat)
}
