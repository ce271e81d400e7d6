package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/handler"
	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

type mockChatService struct {
	lastRequester uint
	lastOther     uint
	lastName      string
	lastMembers   []uint
	response      dto.ChatView
	err           error
}

func (m *mockChatService) AccessChat(_ context.Context, requesterID, otherUserID uint) (dto.ChatView, error) {
	m.lastRequester = requesterID
	m.lastOther = otherUserID
	return m.response, m.err
}

func (m *mockChatService) ListChats(_ context.Context, requesterID uint) ([]dto.ChatView, error) {
	m.lastRequester = requesterID
	if m.err != nil {
		return nil, m.err
	}
	return []dto.ChatView{m.response}, nil
}

func (m *mockChatService) CreateGroupChat(_ context.Context, requesterID uint, name string, memberIDs []uint) (dto.ChatView, error) {
	m.lastRequester = requesterID
	m.lastName = name
	m.lastMembers = memberIDs
	return m.response, m.err
}

func (m *mockChatService) RenameChat(_ context.Context, chatID uint, name string) (dto.ChatView, error) {
	m.lastName = name
	return m.response, m.err
}

func (m *mockChatService) AddMember(_ context.Context, chatID, userID uint) (dto.ChatView, error) {
	m.lastOther = userID
	return m.response, m.err
}

func (m *mockChatService) RemoveMember(_ context.Context, requesterID, chatID, userID uint) (dto.ChatView, error) {
	m.lastRequester = requesterID
	m.lastOther = userID
	return m.response, m.err
}

func newChatTestApp(svc *mockChatService) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(42))
		return c.Next()
	})
	handler.NewChatHandler(svc, zerolog.New(io.Discard)).Register(group)
	return app
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}

func TestChatHandler_AccessChat(t *testing.T) {
	svc := &mockChatService{response: dto.ChatView{ID: 7}}
	app := newChatTestApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/chat", dto.AccessChatRequest{UserID: 2}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(42), svc.lastRequester)
	require.Equal(t, uint(2), svc.lastOther)

	var response struct {
		Success bool         `json:"success"`
		Data    dto.ChatView `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Equal(t, uint(7), response.Data.ID)
}

func TestChatHandler_CreateGroupDecodesMemberList(t *testing.T) {
	svc := &mockChatService{response: dto.ChatView{ID: 7, IsGroupChat: true}}
	app := newChatTestApp(svc)

	payload := map[string]string{"name": "team", "users": "[2,3]"}
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/chat/group", payload))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "team", svc.lastName)
	require.Equal(t, []uint{2, 3}, svc.lastMembers)
}

func TestChatHandler_CreateGroupRejectsMalformedMemberList(t *testing.T) {
	svc := &mockChatService{}
	app := newChatTestApp(svc)

	payload := map[string]string{"name": "team", "users": "not json"}
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/chat/group", payload))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, svc.lastName)
}

func TestChatHandler_RemoveMemberForbidden(t *testing.T) {
	svc := &mockChatService{err: apperrors.Forbidden("only the group admin can remove users")}
	app := newChatTestApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPut, "/api/v1/chat/groupremove", dto.GroupMemberRequest{ChatID: 7, UserID: 2}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeResponse(t, resp, &response)
	require.False(t, response.Success)
	require.Equal(t, "only the group admin can remove users", response.Message)
}

func TestChatHandler_ListChats(t *testing.T) {
	svc := &mockChatService{response: dto.ChatView{ID: 7}}
	app := newChatTestApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(42), svc.lastRequester)
}
