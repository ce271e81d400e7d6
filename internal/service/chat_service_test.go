package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/models"
	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

type chatRepoStub struct {
	chats  map[uint]*models.Chat
	nextID uint
}

func newChatRepoStub() *chatRepoStub {
	return &chatRepoStub{chats: make(map[uint]*models.Chat), nextID: 1}
}

func (s *chatRepoStub) add(chat models.Chat) *models.Chat {
	if chat.ID == 0 {
		chat.ID = s.nextID
	}
	if chat.ID >= s.nextID {
		s.nextID = chat.ID + 1
	}
	copied := chat
	s.chats[copied.ID] = &copied
	return s.chats[copied.ID]
}

func (s *chatRepoStub) Create(ctx context.Context, chat *models.Chat) error {
	if chat.PairKey != nil {
		for _, existing := range s.chats {
			if existing.PairKey != nil && *existing.PairKey == *chat.PairKey {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	stored := s.add(*chat)
	chat.ID = stored.ID
	return nil
}

// populated resolves GroupAdmin from the membership list the way the real
// repository's preload does; the admin is always a member.
func (s *chatRepoStub) populated(chat models.Chat) models.Chat {
	if chat.GroupAdminID != nil {
		for i := range chat.Users {
			if chat.Users[i].ID == *chat.GroupAdminID {
				admin := chat.Users[i]
				chat.GroupAdmin = &admin
				break
			}
		}
	}
	return chat
}

func (s *chatRepoStub) GetByID(ctx context.Context, id uint) (models.Chat, error) {
	if chat, ok := s.chats[id]; ok {
		return s.populated(*chat), nil
	}
	return models.Chat{}, gorm.ErrRecordNotFound
}

func (s *chatRepoStub) FindDirectByPairKey(ctx context.Context, pairKey string) (models.Chat, error) {
	for _, chat := range s.chats {
		if !chat.IsGroupChat && chat.PairKey != nil && *chat.PairKey == pairKey {
			return s.populated(*chat), nil
		}
	}
	return models.Chat{}, gorm.ErrRecordNotFound
}

func (s *chatRepoStub) ListForUser(ctx context.Context, userID uint) ([]models.Chat, error) {
	var out []models.Chat
	for _, chat := range s.chats {
		if chat.HasMember(userID) {
			out = append(out, s.populated(*chat))
		}
	}
	return out, nil
}

func (s *chatRepoStub) Rename(ctx context.Context, id uint, name string) error {
	if chat, ok := s.chats[id]; ok {
		chat.Name = name
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (s *chatRepoStub) AddMember(ctx context.Context, chatID uint, user models.User) error {
	chat, ok := s.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	chat.Users = append(chat.Users, user)
	return nil
}

func (s *chatRepoStub) RemoveMember(ctx context.Context, chatID uint, user models.User) error {
	chat, ok := s.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	remaining := chat.Users[:0]
	for _, member := range chat.Users {
		if member.ID != user.ID {
			remaining = append(remaining, member)
		}
	}
	chat.Users = remaining
	return nil
}

func (s *chatRepoStub) SetLatestMessage(ctx context.Context, chatID, messageID uint) error {
	chat, ok := s.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	chat.LatestMessageID = &messageID
	return nil
}

// racingChatRepo simulates losing the direct-chat creation race: the winner
// lands just before our insert, which then violates the pair_key index.
type racingChatRepo struct {
	*chatRepoStub
	winner models.Chat
}

func (r *racingChatRepo) Create(ctx context.Context, chat *models.Chat) error {
	if chat.PairKey != nil {
		r.chatRepoStub.add(r.winner)
		return gorm.ErrDuplicatedKey
	}
	return r.chatRepoStub.Create(ctx, chat)
}

// latestSourceStub stands in for the message service's redis-backed cache.
type latestSourceStub struct {
	views map[uint]*dto.MessageView
}

func (s *latestSourceStub) CachedLatest(ctx context.Context, chatID uint) *dto.MessageView {
	return s.views[chatID]
}

func newChatFixture(t *testing.T) (*chatRepoStub, *userRepoStub, ChatService) {
	t.Helper()
	chats := newChatRepoStub()
	users := newUserRepoStub()
	validate := validator.New(validator.WithRequiredStructEnabled())
	return chats, users, NewChatService(chats, users, nil, validate, testLogger())
}

func TestChatServiceAccessChatRejectsSelf(t *testing.T) {
	_, users, svc := newChatFixture(t)
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})

	_, err := svc.AccessChat(context.Background(), alice.ID, alice.ID)
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestChatServiceAccessChatUnknownUser(t *testing.T) {
	_, users, svc := newChatFixture(t)
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})

	_, err := svc.AccessChat(context.Background(), alice.ID, 999)
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestChatServiceAccessChatIdempotent(t *testing.T) {
	_, users, svc := newChatFixture(t)
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})
	bob := users.add(models.User{Name: "Bob", Email: "bob@example.com"})

	first, err := svc.AccessChat(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, first.IsGroupChat)
	require.Len(t, first.Users, 2)

	// opening from the other side returns the same chat
	second, err := svc.AccessChat(context.Background(), bob.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestChatServiceAccessChatResolvesLostRace(t *testing.T) {
	chats := newChatRepoStub()
	users := newUserRepoStub()
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})
	bob := users.add(models.User{Name: "Bob", Email: "bob@example.com"})

	pairKey := "1:2"
	racing := &racingChatRepo{
		chatRepoStub: chats,
		winner:       models.Chat{ID: 77, PairKey: &pairKey, Users: []models.User{*alice, *bob}},
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewChatService(racing, users, nil, validate, testLogger())

	view, err := svc.AccessChat(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, uint(77), view.ID)
}

func TestChatServiceListChatsPrefersCachedLatest(t *testing.T) {
	chats := newChatRepoStub()
	users := newUserRepoStub()
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})
	bob := users.add(models.User{Name: "Bob", Email: "bob@example.com"})

	direct := chats.add(models.Chat{Users: []models.User{*alice, *bob}})
	other := chats.add(models.Chat{Users: []models.User{*alice, *bob}})

	latest := &latestSourceStub{views: map[uint]*dto.MessageView{
		direct.ID: {
			ID:      5,
			Content: "see you at noon",
			Sender:  dto.UserView{ID: bob.ID, Name: bob.Name},
			Chat:    dto.MessageChatView{ID: direct.ID},
		},
	}}

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewChatService(chats, users, latest, validate, testLogger())

	views, err := svc.ListChats(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	for _, view := range views {
		if view.ID == direct.ID {
			require.NotNil(t, view.LatestMessage)
			require.Equal(t, "see you at noon", view.LatestMessage.Content)
			require.Equal(t, bob.ID, view.LatestMessage.Sender.ID)
		} else {
			// cold cache falls back to whatever the row carries
			require.Equal(t, other.ID, view.ID)
			require.Nil(t, view.LatestMessage)
		}
	}
}

func TestChatServiceCreateGroupValidation(t *testing.T) {
	_, users, svc := newChatFixture(t)
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})
	bob := users.add(models.User{Name: "Bob", Email: "bob@example.com"})

	_, err := svc.CreateGroupChat(context.Background(), alice.ID, "", []uint{bob.ID})
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	// the requester does not count towards the minimum, nor do duplicates
	_, err = svc.CreateGroupChat(context.Background(), alice.ID, "team", []uint{bob.ID, bob.ID, alice.ID})
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	_, err = svc.CreateGroupChat(context.Background(), alice.ID, "team", []uint{bob.ID, 999})
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestChatServiceCreateGroup(t *testing.T) {
	_, users, svc := newChatFixture(t)
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})
	bob := users.add(models.User{Name: "Bob", Email: "bob@example.com"})
	cara := users.add(models.User{Name: "Cara", Email: "cara@example.com"})

	view, err := svc.CreateGroupChat(context.Background(), alice.ID, "team", []uint{bob.ID, cara.ID})
	require.NoError(t, err)
	require.True(t, view.IsGroupChat)
	require.Len(t, view.Users, 3)
	require.NotNil(t, view.GroupAdmin)
	require.Equal(t, alice.ID, view.GroupAdmin.ID)
}

func TestChatServiceRenameMissingChat(t *testing.T) {
	_, _, svc := newChatFixture(t)

	_, err := svc.RenameChat(context.Background(), 42, "renamed")
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestChatServiceAddMemberIsIdempotent(t *testing.T) {
	chats, users, svc := newChatFixture(t)
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})
	bob := users.add(models.User{Name: "Bob", Email: "bob@example.com"})
	cara := users.add(models.User{Name: "Cara", Email: "cara@example.com"})

	group := chats.add(models.Chat{
		Name:         "team",
		IsGroupChat:  true,
		GroupAdminID: &alice.ID,
		Users:        []models.User{*alice, *bob},
	})

	view, err := svc.AddMember(context.Background(), group.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, view.Users, 2)

	view, err = svc.AddMember(context.Background(), group.ID, cara.ID)
	require.NoError(t, err)
	require.Len(t, view.Users, 3)
}

func TestChatServiceRemoveMemberRules(t *testing.T) {
	chats, users, svc := newChatFixture(t)
	alice := users.add(models.User{Name: "Alice", Email: "alice@example.com"})
	bob := users.add(models.User{Name: "Bob", Email: "bob@example.com"})
	cara := users.add(models.User{Name: "Cara", Email: "cara@example.com"})

	group := chats.add(models.Chat{
		Name:         "team",
		IsGroupChat:  true,
		GroupAdminID: &alice.ID,
		Users:        []models.User{*alice, *bob, *cara},
	})

	_, err := svc.RemoveMember(context.Background(), bob.ID, group.ID, cara.ID)
	require.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	_, err = svc.RemoveMember(context.Background(), alice.ID, group.ID, alice.ID)
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	_, err = svc.RemoveMember(context.Background(), alice.ID, group.ID, 999)
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	view, err := svc.RemoveMember(context.Background(), alice.ID, group.ID, cara.ID)
	require.NoError(t, err)
	require.Len(t, view.Users, 2)
}
