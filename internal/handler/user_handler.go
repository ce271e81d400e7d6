package handler

import (
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/middleware"
	"github.com/ravi-anand/chatwave-api/internal/service"
	"github.com/ravi-anand/chatwave-api/internal/utils"
)

// UserHandler wires registration, session and profile endpoints.
type UserHandler struct {
	users  service.UserService
	auth   service.AuthService
	logger zerolog.Logger
}

// NewUserHandler creates a user handler instance.
func NewUserHandler(users service.UserService, auth service.AuthService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		auth:   auth,
		logger: logger.With().Str("component", "user_handler").Logger(),
	}
}

// Register binds the unauthenticated user routes.
func (h *UserHandler) Register(router fiber.Router) {
	router.Post("/user", h.register)
	router.Post("/user/login", h.login)
	router.Post("/user/refresh-token", h.refresh)
}

// RegisterProtected binds the user routes that require a valid access token.
func (h *UserHandler) RegisterProtected(router fiber.Router) {
	router.Get("/user", h.search)
	router.Post("/user/logout", h.logout)
	router.Patch("/user/password", h.changePassword)
	router.Patch("/user/profile", h.updateProfile)
}

func (h *UserHandler) register(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid registration payload")
	}

	avatarName, avatar, err := formFileBytes(c, "avatar")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "avatar image is required")
	}

	profile, err := h.users.Register(requestContext(c), payload, avatarName, avatar)
	if err != nil {
		return respondError(c, logger, err)
	}

	logger.Info().Uint("user_id", profile.ID).Msg("user registered")

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "user registered", profile)
}

func (h *UserHandler) login(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid login payload")
	}

	response, err := h.auth.Login(requestContext(c), payload)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "login successful", response)
}

func (h *UserHandler) refresh(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.BodyParser(&payload)
	if payload.RefreshToken == "" {
		payload.RefreshToken = middleware.BearerToken(c)
	}

	response, err := h.auth.Refresh(requestContext(c), payload.RefreshToken)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "token refreshed", response)
}

func (h *UserHandler) logout(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	if err := h.auth.Logout(requestContext(c), userIDFromContext(c)); err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "logged out", nil)
}

func (h *UserHandler) search(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	users, err := h.users.Search(requestContext(c), userIDFromContext(c), c.Query("search"))
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "users", users)
}

func (h *UserHandler) changePassword(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.ChangePasswordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid password payload")
	}

	if err := h.auth.ChangePassword(requestContext(c), userIDFromContext(c), payload); err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "password updated", nil)
}

func (h *UserHandler) updateProfile(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	name := c.FormValue("name")
	avatarName, avatar, err := formFileBytes(c, "avatar")
	if err != nil {
		avatarName, avatar = "", nil
	}

	profile, err := h.users.UpdateProfile(requestContext(c), userIDFromContext(c), name, avatarName, avatar)
	if err != nil {
		return respondError(c, logger, err)
	}

	return utils.SendSuccess(c, "profile updated", profile)
}

func formFileBytes(c *fiber.Ctx, field string) (string, []byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return "", nil, err
	}
	data, err := readMultipartFile(header)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
