package contract_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/handler"
)

type stubChatService struct {
	view dto.ChatView
}

func (s stubChatService) AccessChat(context.Context, uint, uint) (dto.ChatView, error) {
	return s.view, nil
}

func (s stubChatService) ListChats(context.Context, uint) ([]dto.ChatView, error) {
	return []dto.ChatView{s.view}, nil
}

func (s stubChatService) CreateGroupChat(context.Context, uint, string, []uint) (dto.ChatView, error) {
	return s.view, nil
}

func (s stubChatService) RenameChat(context.Context, uint, string) (dto.ChatView, error) {
	return s.view, nil
}

func (s stubChatService) AddMember(context.Context, uint, uint) (dto.ChatView, error) {
	return s.view, nil
}

func (s stubChatService) RemoveMember(context.Context, uint, uint, uint) (dto.ChatView, error) {
	return s.view, nil
}

type stubMessageService struct {
	view dto.MessageView
}

func (s stubMessageService) Send(context.Context, uint, dto.SendMessageRequest) (dto.MessageView, error) {
	return s.view, nil
}

func (s stubMessageService) ListMessages(context.Context, uint) ([]dto.MessageView, error) {
	return []dto.MessageView{s.view}, nil
}

func (s stubMessageService) CachedLatest(context.Context, uint) *dto.MessageView {
	return nil
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func fixtureUsers() []dto.UserView {
	return []dto.UserView{
		{ID: 1, Name: "Alice", Email: "alice@example.com", AvatarURL: "https://cdn.example.com/alice.png"},
		{ID: 2, Name: "Bob", Email: "bob@example.com", AvatarURL: "https://cdn.example.com/bob.png"},
		{ID: 3, Name: "Cara", Email: "cara@example.com", AvatarURL: "https://cdn.example.com/cara.png"},
	}
}

func validateResponse(t *testing.T, resp *http.Response, schema *jsonschema.Schema) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestChatViewContract(t *testing.T) {
	schema := compileSchema(t, "chat_view.schema.json")

	now := time.Now().UTC()
	users := fixtureUsers()
	admin := users[0]
	view := dto.ChatView{
		ID:          7,
		Name:        "team",
		IsGroupChat: true,
		Users:       users,
		GroupAdmin:  &admin,
		LatestMessage: &dto.LatestMessageView{
			ID:        12,
			Content:   "hello",
			Sender:    users[1],
			CreatedAt: now,
		},
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
	}

	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		return c.Next()
	})
	handler.NewChatHandler(stubChatService{view: view}, zerolog.Nop()).Register(group)

	payload, err := json.Marshal(dto.AccessChatRequest{UserID: 2})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateResponse(t, resp, schema)
}

func TestMessageViewContract(t *testing.T) {
	schema := compileSchema(t, "message_view.schema.json")

	users := fixtureUsers()
	view := dto.MessageView{
		ID:      12,
		Content: "hello",
		Sender:  users[0],
		Chat: dto.MessageChatView{
			ID:          7,
			Name:        "team",
			IsGroupChat: true,
			Users:       users,
		},
		CreatedAt: time.Now().UTC(),
	}

	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		return c.Next()
	})
	handler.NewMessageHandler(stubMessageService{view: view}, zerolog.Nop()).Register(group)

	payload, err := json.Marshal(dto.SendMessageRequest{Content: "hello", ChatID: 7})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	validateResponse(t, resp, schema)
}
