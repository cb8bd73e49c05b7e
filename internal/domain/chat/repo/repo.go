package repo

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/google/uuid"
)

// Visibility is the query form of the room VIEW rule. Rooms of ImplicitTypes are
// visible to everyone; others only to an active participant ParticipantID.
type Visibility struct {
	ImplicitTypes []model.RoomType
	ParticipantID uuid.UUID
	Deny          bool
}

type RoomRepo interface {
	CreateRoom(ctx context.Context, room model.ChatRoom) error
	// GetRoom loads the room together with all participant rows, deleted ones included.
	GetRoom(ctx context.Context, id uuid.UUID) (model.ChatRoom, error)
	UpdateRoom(ctx context.Context, room model.ChatRoom) error
	DeleteRoom(ctx context.Context, id uuid.UUID) error
	ListRooms(ctx context.Context, vis Visibility, page model.Page) ([]model.ChatRoom, int64, error)

	// AddParticipant re-activates a soft-deleted membership instead of duplicating it.
	AddParticipant(ctx context.Context, p model.ChatParticipant) (model.ChatParticipant, error)
	RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error
}

type MessageRepo interface {
	CreateMessage(ctx context.Context, msg model.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (model.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	// ListMessages returns only messages of rooms matching vis; roomID narrows when set.
	ListMessages(ctx context.Context, vis Visibility, roomID *uuid.UUID, page model.Page) ([]model.Message, int64, error)
}

// Publisher is the real-time delivery sink.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}
