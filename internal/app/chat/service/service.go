package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/chat/authz"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	authRepo "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/repo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	ListRooms(ctx context.Context, p *authz.Principal, page model.Page) ([]model.ChatRoom, int64, error)
	CreateRoom(ctx context.Context, p *authz.Principal, in dto.CreateRoomDTO) (model.ChatRoom, error)
	GetRoom(ctx context.Context, p *authz.Principal, id uuid.UUID) (model.ChatRoom, error)
	RenameRoom(ctx context.Context, p *authz.Principal, id uuid.UUID, in dto.UpdateRoomDTO) (model.ChatRoom, error)
	DeleteRoom(ctx context.Context, p *authz.Principal, id uuid.UUID) error

	AddParticipant(ctx context.Context, p *authz.Principal, roomID uuid.UUID, in dto.AddParticipantDTO) (model.ChatParticipant, error)
	RemoveParticipant(ctx context.Context, p *authz.Principal, roomID, userID uuid.UUID) error

	ListMessages(ctx context.Context, p *authz.Principal, roomID *uuid.UUID, page model.Page) ([]model.Message, int64, error)
	PostMessage(ctx context.Context, p *authz.Principal, roomID uuid.UUID, in dto.CreateMessageDTO) (model.Message, error)
	GetMessage(ctx context.Context, p *authz.Principal, id uuid.UUID) (model.Message, error)
	DeleteMessage(ctx context.Context, p *authz.Principal, id uuid.UUID) error
}

// Event is what subscribers of a room topic receive.
type Event struct {
	Type    string          `json:"type"`
	RoomID  uuid.UUID       `json:"room_id"`
	Message *dto.MessageDTO `json:"message,omitempty"`
	UserID  *uuid.UUID      `json:"user_id,omitempty"`
}

const (
	EventMessageCreated = "message.created"
	EventMessageDeleted = "message.deleted"
	EventMemberJoined   = "participant.joined"
	EventMemberLeft     = "participant.left"
)

func RoomTopic(id uuid.UUID) string { return "rooms/" + id.String() }

type chatService struct {
	rooms    repo.RoomRepo
	messages repo.MessageRepo
	users    authRepo.UserRepo
	pub      repo.Publisher
	v        *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func New(
	rooms repo.RoomRepo,
	messages repo.MessageRepo,
	users authRepo.UserRepo,
	pub repo.Publisher,
	v *validator.Validate,
	log *zap.Logger,
) Service {
	return &chatService{rooms: rooms, messages: messages, users: users, pub: pub, v: v, log: log, now: time.Now}
}

func (s *chatService) ListRooms(ctx context.Context, p *authz.Principal, page model.Page) ([]model.ChatRoom, int64, error) {
	rooms, total, err := s.rooms.ListRooms(ctx, authz.VisibilityFilter(p), page.Normalize())
	if err != nil {
		return nil, 0, customErrors.WrapInternal(err, "ListRooms")
	}
	return rooms, total, nil
}

func (s *chatService) CreateRoom(ctx context.Context, p *authz.Principal, in dto.CreateRoomDTO) (model.ChatRoom, error) {
	if p == nil {
		return model.ChatRoom{}, customErrors.ErrForbidden
	}
	if err := s.v.Struct(in); err != nil {
		return model.ChatRoom{}, customErrors.NewInvalidArgument(err.Error())
	}

	now := s.now()
	room := model.ChatRoom{
		ID:        uuid.New(),
		Name:      in.Name,
		Type:      model.RoomType(in.Type),
		CreatedBy: p.UserID,
	}
	room.Participants = append(room.Participants, model.ChatParticipant{
		ID: uuid.New(), RoomID: room.ID, UserID: p.UserID, Role: model.ParticipantAdmin, JoinedAt: now,
	})

	seen := map[uuid.UUID]bool{p.UserID: true}
	for _, uid := range in.ParticipantIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		if _, err := s.users.GetUserByID(ctx, uid); err != nil {
			if customErrors.IsNotFound(err) {
				return model.ChatRoom{}, customErrors.NewInvalidArgument(fmt.Sprintf("unknown participant %s", uid))
			}
			return model.ChatRoom{}, customErrors.WrapInternal(err, "CreateRoom")
		}
		room.Participants = append(room.Participants, model.ChatParticipant{
			ID: uuid.New(), RoomID: room.ID, UserID: uid, Role: model.ParticipantMember, JoinedAt: now,
		})
	}

	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return model.ChatRoom{}, customErrors.WrapInternal(err, "CreateRoom")
	}
	return s.loadRoom(ctx, room.ID)
}

func (s *chatService) GetRoom(ctx context.Context, p *authz.Principal, id uuid.UUID) (model.ChatRoom, error) {
	return s.authorizedRoom(ctx, p, id, authz.ActionView)
}

func (s *chatService) RenameRoom(ctx context.Context, p *authz.Principal, id uuid.UUID, in dto.UpdateRoomDTO) (model.ChatRoom, error) {
	if err := s.v.Struct(in); err != nil {
		return model.ChatRoom{}, customErrors.NewInvalidArgument(err.Error())
	}
	room, err := s.authorizedRoom(ctx, p, id, authz.ActionEdit)
	if err != nil {
		return model.ChatRoom{}, err
	}
	room.Name = in.Name
	if err := s.rooms.UpdateRoom(ctx, room); err != nil {
		return model.ChatRoom{}, storeErr(err, "RenameRoom")
	}
	return s.loadRoom(ctx, id)
}

func (s *chatService) DeleteRoom(ctx context.Context, p *authz.Principal, id uuid.UUID) error {
	if _, err := s.authorizedRoom(ctx, p, id, authz.ActionDelete); err != nil {
		return err
	}
	if err := s.rooms.DeleteRoom(ctx, id); err != nil {
		return storeErr(err, "DeleteRoom")
	}
	return nil
}

// AddParticipant lets room editors add anyone; any user may join a public room as a member.
func (s *chatService) AddParticipant(ctx context.Context, p *authz.Principal, roomID uuid.UUID, in dto.AddParticipantDTO) (model.ChatParticipant, error) {
	if err := s.v.Struct(in); err != nil {
		return model.ChatParticipant{}, customErrors.NewInvalidArgument(err.Error())
	}
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return model.ChatParticipant{}, err
	}

	role := model.ParticipantRole(in.Role)
	if role == "" {
		role = model.ParticipantMember
	}
	selfJoin := p != nil && in.UserID == p.UserID && room.Type == model.RoomPublic && role == model.ParticipantMember
	if !selfJoin && !authz.CanEdit(p, room) {
		return model.ChatParticipant{}, customErrors.ErrForbidden
	}

	if _, err := s.users.GetUserByID(ctx, in.UserID); err != nil {
		if customErrors.IsNotFound(err) {
			return model.ChatParticipant{}, customErrors.NewInvalidArgument(fmt.Sprintf("unknown user %s", in.UserID))
		}
		return model.ChatParticipant{}, customErrors.WrapInternal(err, "AddParticipant")
	}

	part, err := s.rooms.AddParticipant(ctx, model.ChatParticipant{
		ID: uuid.New(), RoomID: roomID, UserID: in.UserID, Role: role, JoinedAt: s.now(),
	})
	if err != nil {
		return model.ChatParticipant{}, storeErr(err, "AddParticipant")
	}
	uid := in.UserID
	s.publish(ctx, roomID, Event{Type: EventMemberJoined, RoomID: roomID, UserID: &uid})
	return part, nil
}

// RemoveParticipant soft-deletes the membership. Users may leave; editors may remove others.
func (s *chatService) RemoveParticipant(ctx context.Context, p *authz.Principal, roomID, userID uuid.UUID) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if p == nil || (p.UserID != userID && !authz.CanEdit(p, room)) {
		return customErrors.ErrForbidden
	}
	if _, ok := room.ActiveParticipant(userID); !ok {
		return customErrors.ErrNotFound
	}
	if err := s.rooms.RemoveParticipant(ctx, roomID, userID); err != nil {
		return storeErr(err, "RemoveParticipant")
	}
	s.publish(ctx, roomID, Event{Type: EventMemberLeft, RoomID: roomID, UserID: &userID})
	return nil
}

func (s *chatService) ListMessages(ctx context.Context, p *authz.Principal, roomID *uuid.UUID, page model.Page) ([]model.Message, int64, error) {
	msgs, total, err := s.messages.ListMessages(ctx, authz.VisibilityFilter(p), roomID, page.Normalize())
	if err != nil {
		return nil, 0, customErrors.WrapInternal(err, "ListMessages")
	}
	return msgs, total, nil
}

func (s *chatService) PostMessage(ctx context.Context, p *authz.Principal, roomID uuid.UUID, in dto.CreateMessageDTO) (model.Message, error) {
	if err := s.v.Struct(in); err != nil {
		return model.Message{}, customErrors.NewInvalidArgument(err.Error())
	}
	if _, err := s.authorizedRoom(ctx, p, roomID, authz.ActionView); err != nil {
		return model.Message{}, err
	}

	now := s.now()
	msg := model.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		AuthorID:  p.UserID,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return model.Message{}, customErrors.WrapInternal(err, "PostMessage")
	}
	out := dto.NewMessageDTO(msg)
	s.publish(ctx, roomID, Event{Type: EventMessageCreated, RoomID: roomID, Message: &out})
	return msg, nil
}

func (s *chatService) GetMessage(ctx context.Context, p *authz.Principal, id uuid.UUID) (model.Message, error) {
	msg, err := s.loadMessage(ctx, id)
	if err != nil {
		return model.Message{}, err
	}
	room, err := s.loadRoom(ctx, msg.RoomID)
	if err != nil {
		return model.Message{}, err
	}
	if !authz.Allowed(p, authz.ResourceMessage, authz.ActionView, authz.Target{Room: room, Message: msg}) {
		return model.Message{}, customErrors.ErrForbidden
	}
	return msg, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, p *authz.Principal, id uuid.UUID) error {
	msg, err := s.loadMessage(ctx, id)
	if err != nil {
		return err
	}
	if !authz.Allowed(p, authz.ResourceMessage, authz.ActionDelete, authz.Target{Message: msg}) {
		return customErrors.ErrForbidden
	}
	if err := s.messages.DeleteMessage(ctx, id); err != nil {
		return storeErr(err, "DeleteMessage")
	}
	out := dto.NewMessageDTO(msg)
	s.publish(ctx, msg.RoomID, Event{Type: EventMessageDeleted, RoomID: msg.RoomID, Message: &out})
	return nil
}

func (s *chatService) authorizedRoom(ctx context.Context, p *authz.Principal, id uuid.UUID, act authz.Action) (model.ChatRoom, error) {
	room, err := s.loadRoom(ctx, id)
	if err != nil {
		return model.ChatRoom{}, err
	}
	if !authz.Allowed(p, authz.ResourceRoom, act, authz.Target{Room: room}) {
		return model.ChatRoom{}, customErrors.ErrForbidden
	}
	return room, nil
}

func (s *chatService) loadRoom(ctx context.Context, id uuid.UUID) (model.ChatRoom, error) {
	room, err := s.rooms.GetRoom(ctx, id)
	switch {
	case customErrors.IsNotFound(err):
		return model.ChatRoom{}, customErrors.ErrNotFound
	case err != nil:
		return model.ChatRoom{}, customErrors.WrapInternal(err, "GetRoom")
	}
	return room, nil
}

func (s *chatService) loadMessage(ctx context.Context, id uuid.UUID) (model.Message, error) {
	msg, err := s.messages.GetMessage(ctx, id)
	switch {
	case customErrors.IsNotFound(err):
		return model.Message{}, customErrors.ErrNotFound
	case err != nil:
		return model.Message{}, customErrors.WrapInternal(err, "GetMessage")
	}
	return msg, nil
}

// storeErr keeps the sentinels a concurrent writer can cause (row gone, row already there)
// and wraps everything else as internal.
func storeErr(err error, op string) error {
	switch {
	case customErrors.IsNotFound(err):
		return customErrors.ErrNotFound
	case customErrors.IsAlreadyExists(err):
		return customErrors.ErrAlreadyExists
	}
	return customErrors.WrapInternal(err, op)
}

// publish is best effort; failures are only logged.
func (s *chatService) publish(ctx context.Context, roomID uuid.UUID, ev Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, RoomTopic(roomID), ev); err != nil {
		s.log.Warn("publish failed",
			zap.String("topic", RoomTopic(roomID)),
			zap.String("event", ev.Type),
			zap.Error(err),
		)
	}
}
