package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/db/dbtest"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/db/postgres"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/chat/authz"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/chat/service"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	authModel "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type published struct {
	topic string
	event service.Event
}

type pubRecorder struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *pubRecorder) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, event: payload.(service.Event)})
	return nil
}

func (p *pubRecorder) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

type fixture struct {
	svc  service.Service
	pub  *pubRecorder
	logs *observer.ObservedLogs
}

func newChat(t *testing.T) (fixture, func(email string) *authz.Principal) {
	t.Helper()
	db := dbtest.Open(t)
	users := postgres.NewPostgresUserRepo(db)
	core, logs := observer.New(zap.WarnLevel)
	pub := &pubRecorder{}

	f := fixture{
		svc: service.New(postgres.NewPostgresRoomRepo(db), postgres.NewPostgresMessageRepo(db), users, pub,
			validator.New(), zap.New(core)),
		pub:  pub,
		logs: logs,
	}

	newUser := func(email string) *authz.Principal {
		hash := "$argon2id$stub"
		u := authModel.User{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: &hash,
			Roles:        authModel.Roles{authModel.RoleUser},
		}
		_, err := users.CreateUser(context.Background(), u)
		require.NoError(t, err)
		return authz.PrincipalOf(u)
	}
	return f, newUser
}

func TestChat_CreateRoom(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice, bob := newUser("alice@test.com"), newUser("bob@test.com")

	room, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{
		Name: "team", Type: "group", ParticipantIDs: []uuid.UUID{bob.UserID, alice.UserID, bob.UserID},
	})
	require.NoError(t, err)
	require.Len(t, room.Participants, 2)

	owner, ok := room.ActiveParticipant(alice.UserID)
	require.True(t, ok)
	require.Equal(t, model.ParticipantAdmin, owner.Role)
	member, ok := room.ActiveParticipant(bob.UserID)
	require.True(t, ok)
	require.Equal(t, model.ParticipantMember, member.Role)

	_, err = f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "x", Type: "group", ParticipantIDs: []uuid.UUID{uuid.New()}})
	require.True(t, customErrors.IsInvalidArgument(err))

	_, err = f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "x", Type: "broadcast"})
	require.True(t, customErrors.IsInvalidArgument(err))

	_, err = f.svc.CreateRoom(ctx, nil, dto.CreateRoomDTO{Name: "x", Type: "group"})
	require.True(t, customErrors.IsForbidden(err))
}

func TestChat_GroupVisibilityFollowsMembership(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice, bob := newUser("alice@test.com"), newUser("bob@test.com")

	room, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "secret", Type: "group"})
	require.NoError(t, err)

	_, err = f.svc.GetRoom(ctx, bob, room.ID)
	require.True(t, customErrors.IsForbidden(err))
	_, err = f.svc.PostMessage(ctx, bob, room.ID, dto.CreateMessageDTO{Content: "let me in"})
	require.True(t, customErrors.IsForbidden(err))

	// bob не может добавить себя в группу сам
	_, err = f.svc.AddParticipant(ctx, bob, room.ID, dto.AddParticipantDTO{UserID: bob.UserID})
	require.True(t, customErrors.IsForbidden(err))

	_, err = f.svc.AddParticipant(ctx, alice, room.ID, dto.AddParticipantDTO{UserID: bob.UserID})
	require.NoError(t, err)
	_, err = f.svc.GetRoom(ctx, bob, room.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveParticipant(ctx, bob, room.ID, bob.UserID))
	_, err = f.svc.GetRoom(ctx, bob, room.ID)
	require.True(t, customErrors.IsForbidden(err))

	require.Equal(t, []string{service.EventMemberJoined, service.EventMemberLeft}, f.pub.types())
}

func TestChat_PublicRoomSelfJoin(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice, bob, carol := newUser("alice@test.com"), newUser("bob@test.com"), newUser("carol@test.com")

	room, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "lobby", Type: "public"})
	require.NoError(t, err)

	_, err = f.svc.GetRoom(ctx, bob, room.ID)
	require.NoError(t, err, "public rooms are visible without membership")

	part, err := f.svc.AddParticipant(ctx, bob, room.ID, dto.AddParticipantDTO{UserID: bob.UserID})
	require.NoError(t, err)
	require.Equal(t, model.ParticipantMember, part.Role)

	_, err = f.svc.AddParticipant(ctx, bob, room.ID, dto.AddParticipantDTO{UserID: bob.UserID, Role: "admin"})
	require.True(t, customErrors.IsForbidden(err))
	_, err = f.svc.AddParticipant(ctx, bob, room.ID, dto.AddParticipantDTO{UserID: carol.UserID})
	require.True(t, customErrors.IsForbidden(err))

	_, err = f.svc.AddParticipant(ctx, alice, room.ID, dto.AddParticipantDTO{UserID: uuid.New()})
	require.True(t, customErrors.IsInvalidArgument(err))

	// админ комнаты не удаляет публичную комнату
	require.True(t, customErrors.IsForbidden(f.svc.DeleteRoom(ctx, alice, room.ID)))
}

func TestChat_ListsAreFiltered(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice, bob := newUser("alice@test.com"), newUser("bob@test.com")

	group, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "g", Type: "group"})
	require.NoError(t, err)
	public, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "p", Type: "public"})
	require.NoError(t, err)

	for _, id := range []uuid.UUID{group.ID, group.ID, public.ID} {
		_, err := f.svc.PostMessage(ctx, alice, id, dto.CreateMessageDTO{Content: "hi"})
		require.NoError(t, err)
	}

	rooms, total, err := f.svc.ListRooms(ctx, bob, model.Page{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, rooms, 1)
	require.Equal(t, public.ID, rooms[0].ID)

	msgs, total, err := f.svc.ListMessages(ctx, bob, nil, model.Page{Number: 1, PerPage: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, msgs, 1)
	require.Equal(t, public.ID, msgs[0].RoomID)

	msgs, total, err = f.svc.ListMessages(ctx, bob, &group.ID, model.Page{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, msgs)

	_, total, err = f.svc.ListMessages(ctx, nil, nil, model.Page{})
	require.NoError(t, err)
	require.Zero(t, total)

	_, total, err = f.svc.ListMessages(ctx, alice, nil, model.Page{})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
}

func TestChat_MessageRules(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice, bob := newUser("alice@test.com"), newUser("bob@test.com")

	room, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "g", Type: "group", ParticipantIDs: []uuid.UUID{bob.UserID}})
	require.NoError(t, err)

	msg, err := f.svc.PostMessage(ctx, bob, room.ID, dto.CreateMessageDTO{Content: "from bob"})
	require.NoError(t, err)

	_, err = f.svc.PostMessage(ctx, bob, room.ID, dto.CreateMessageDTO{})
	require.True(t, customErrors.IsInvalidArgument(err))

	got, err := f.svc.GetMessage(ctx, alice, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "from bob", got.Content)

	// даже админ комнаты не удаляет чужие сообщения
	require.True(t, customErrors.IsForbidden(f.svc.DeleteMessage(ctx, alice, msg.ID)))
	require.NoError(t, f.svc.DeleteMessage(ctx, bob, msg.ID))
	require.True(t, customErrors.IsNotFound(f.svc.DeleteMessage(ctx, bob, msg.ID)))

	require.Equal(t, []string{service.EventMessageCreated, service.EventMessageDeleted}, f.pub.types())
	f.pub.mu.Lock()
	require.Equal(t, service.RoomTopic(room.ID), f.pub.events[0].topic)
	f.pub.mu.Unlock()
}

func TestChat_RenameAndDelete(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice, bob := newUser("alice@test.com"), newUser("bob@test.com")

	room, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "old", Type: "group", ParticipantIDs: []uuid.UUID{bob.UserID}})
	require.NoError(t, err)

	_, err = f.svc.RenameRoom(ctx, bob, room.ID, dto.UpdateRoomDTO{Name: "bob's"})
	require.True(t, customErrors.IsForbidden(err))

	renamed, err := f.svc.RenameRoom(ctx, alice, room.ID, dto.UpdateRoomDTO{Name: "new"})
	require.NoError(t, err)
	require.Equal(t, "new", renamed.Name)

	require.True(t, customErrors.IsForbidden(f.svc.DeleteRoom(ctx, bob, room.ID)))
	require.NoError(t, f.svc.DeleteRoom(ctx, alice, room.ID))

	_, err = f.svc.GetRoom(ctx, alice, room.ID)
	require.True(t, customErrors.IsNotFound(err))
}

func TestChat_PublishFailureIsLogged(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice := newUser("alice@test.com")
	f.pub.err = errors.New("redis down")

	room, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "g", Type: "group"})
	require.NoError(t, err)

	_, err = f.svc.PostMessage(ctx, alice, room.ID, dto.CreateMessageDTO{Content: "still stored"})
	require.NoError(t, err)
	require.Equal(t, 1, f.logs.FilterMessage("publish failed").Len())
}

// racingRooms behaves as if another request got to the row first.
type racingRooms struct {
	*postgres.PostgresRoomRepo
}

func (racingRooms) UpdateRoom(context.Context, model.ChatRoom) error {
	return customErrors.ErrNotFound
}

func (racingRooms) AddParticipant(context.Context, model.ChatParticipant) (model.ChatParticipant, error) {
	return model.ChatParticipant{}, customErrors.ErrAlreadyExists
}

func TestChat_ConcurrentWritesKeepSentinels(t *testing.T) {
	db := dbtest.Open(t)
	users := postgres.NewPostgresUserRepo(db)
	rooms := postgres.NewPostgresRoomRepo(db)
	messages := postgres.NewPostgresMessageRepo(db)
	ctx := context.Background()

	hash := "$argon2id$stub"
	alice := authModel.User{ID: uuid.New(), Email: "alice@test.com", PasswordHash: &hash, Roles: authModel.Roles{authModel.RoleUser}}
	bob := authModel.User{ID: uuid.New(), Email: "bob@test.com", PasswordHash: &hash, Roles: authModel.Roles{authModel.RoleUser}}
	for _, u := range []authModel.User{alice, bob} {
		_, err := users.CreateUser(ctx, u)
		require.NoError(t, err)
	}

	plain := service.New(rooms, messages, users, nil, validator.New(), zap.NewNop())
	room, err := plain.CreateRoom(ctx, authz.PrincipalOf(alice), dto.CreateRoomDTO{Name: "g", Type: "group"})
	require.NoError(t, err)

	racing := service.New(racingRooms{rooms}, messages, users, nil, validator.New(), zap.NewNop())

	_, err = racing.RenameRoom(ctx, authz.PrincipalOf(alice), room.ID, dto.UpdateRoomDTO{Name: "renamed"})
	require.ErrorIs(t, err, customErrors.ErrNotFound)
	require.False(t, customErrors.IsInternal(err))

	_, err = racing.AddParticipant(ctx, authz.PrincipalOf(alice), room.ID, dto.AddParticipantDTO{UserID: bob.ID})
	require.ErrorIs(t, err, customErrors.ErrAlreadyExists)
	require.False(t, customErrors.IsInternal(err))
}

func TestChat_MessageEventsUseWireNames(t *testing.T) {
	f, newUser := newChat(t)
	ctx := context.Background()
	alice := newUser("alice@test.com")

	room, err := f.svc.CreateRoom(ctx, alice, dto.CreateRoomDTO{Name: "g", Type: "group"})
	require.NoError(t, err)
	msg, err := f.svc.PostMessage(ctx, alice, room.ID, dto.CreateMessageDTO{Content: "hi"})
	require.NoError(t, err)

	f.pub.mu.Lock()
	ev := f.pub.events[len(f.pub.events)-1].event
	f.pub.mu.Unlock()

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var payload struct {
		Type    string         `json:"type"`
		Message map[string]any `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, service.EventMessageCreated, payload.Type)
	require.Equal(t, msg.AuthorID.String(), payload.Message["author_id"])
	require.Equal(t, room.ID.String(), payload.Message["room_id"])
	require.NotContains(t, payload.Message, "AuthorID")
	require.NotContains(t, payload.Message, "RoomID")
}
