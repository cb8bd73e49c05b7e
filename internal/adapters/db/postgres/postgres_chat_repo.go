package postgres

import (
	"context"
	"errors"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/repo"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// visibleRooms renders repo.Visibility against chat_rooms. The same scope feeds
// the page query and the COUNT so totals never include hidden rooms.
func visibleRooms(vis repo.Visibility) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if vis.Deny {
			return db.Where("1 = 0")
		}
		member := "EXISTS (SELECT 1 FROM chat_participants cp WHERE cp.room_id = chat_rooms.id AND cp.user_id = ? AND cp.deleted_at IS NULL)"
		if len(vis.ImplicitTypes) == 0 {
			return db.Where(member, vis.ParticipantID)
		}
		return db.Where("(chat_rooms.type IN ? OR "+member+")", vis.ImplicitTypes, vis.ParticipantID)
	}
}

func activeParticipants(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at IS NULL")
}

type PostgresRoomRepo struct {
	db *gorm.DB
}

func NewPostgresRoomRepo(db *gorm.DB) *PostgresRoomRepo {
	return &PostgresRoomRepo{db: db}
}

func (r *PostgresRoomRepo) CreateRoom(ctx context.Context, room model.ChatRoom) error {
	if err := r.db.WithContext(ctx).Create(&room).Error; err != nil {
		return customErrors.WrapInternal(err, "CreateRoom")
	}
	return nil
}

func (r *PostgresRoomRepo) GetRoom(ctx context.Context, id uuid.UUID) (model.ChatRoom, error) {
	var room model.ChatRoom
	res := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&room)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.ChatRoom{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.ChatRoom{}, customErrors.WrapInternal(err, "GetRoom")
	}
	return room, nil
}

func (r *PostgresRoomRepo) UpdateRoom(ctx context.Context, room model.ChatRoom) error {
	res := r.db.WithContext(ctx).Model(&model.ChatRoom{}).Where("id = ?", room.ID).
		Updates(map[string]any{"name": room.Name, "updated_at": time.Now().UTC()})
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "UpdateRoom")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrNotFound
	}
	return nil
}

func (r *PostgresRoomRepo) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return customErrors.WrapInternal(err, "DeleteRoom")
		}
		if err := tx.Where("room_id = ?", id).Delete(&model.ChatParticipant{}).Error; err != nil {
			return customErrors.WrapInternal(err, "DeleteRoom")
		}
		res := tx.Where("id = ?", id).Delete(&model.ChatRoom{})
		if err := res.Error; err != nil {
			return customErrors.WrapInternal(err, "DeleteRoom")
		}
		if res.RowsAffected == 0 {
			return customErrors.ErrNotFound
		}
		return nil
	})
}

func (r *PostgresRoomRepo) ListRooms(ctx context.Context, vis repo.Visibility, page model.Page) ([]model.ChatRoom, int64, error) {
	page = page.Normalize()
	base := r.db.WithContext(ctx).Model(&model.ChatRoom{}).Scopes(visibleRooms(vis))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, customErrors.WrapInternal(err, "CountRooms")
	}

	var rooms []model.ChatRoom
	err := base.Session(&gorm.Session{}).
		Preload("Participants", activeParticipants).
		Order("chat_rooms.created_at DESC").Order("chat_rooms.id").
		Limit(page.PerPage).Offset(page.Offset()).
		Find(&rooms).Error
	if err != nil {
		return nil, 0, customErrors.WrapInternal(err, "ListRooms")
	}
	return rooms, total, nil
}

// AddParticipant returns the active membership if one exists, revives a soft-deleted one,
// or inserts a new row.
func (r *PostgresRoomRepo) AddParticipant(ctx context.Context, p model.ChatParticipant) (model.ChatParticipant, error) {
	var out model.ChatParticipant
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ChatParticipant
		res := tx.Where("room_id = ? AND user_id = ?", p.RoomID, p.UserID).
			Order("deleted_at IS NULL DESC").Order("joined_at DESC").
			First(&existing)
		switch {
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			out = p
			return nil
		case res.Error != nil:
			return res.Error
		}

		if existing.Active() {
			out = existing
			return nil
		}
		existing.DeletedAt = nil
		existing.Role = p.Role
		existing.JoinedAt = p.JoinedAt
		if err := tx.Model(&existing).Select("DeletedAt", "Role", "JoinedAt").Updates(&existing).Error; err != nil {
			return err
		}
		out = existing
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.ChatParticipant{}, customErrors.ErrAlreadyExists
		}
		return model.ChatParticipant{}, customErrors.WrapInternal(err, "AddParticipant")
	}
	return out, nil
}

func (r *PostgresRoomRepo) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.ChatParticipant{}).
		Where("room_id = ? AND user_id = ? AND deleted_at IS NULL", roomID, userID).
		Update("deleted_at", time.Now().UTC())
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "RemoveParticipant")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrNotFound
	}
	return nil
}

type PostgresMessageRepo struct {
	db *gorm.DB
}

func NewPostgresMessageRepo(db *gorm.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (m *PostgresMessageRepo) CreateMessage(ctx context.Context, msg model.Message) error {
	if err := m.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return customErrors.WrapInternal(err, "CreateMessage")
	}
	return nil
}

func (m *PostgresMessageRepo) GetMessage(ctx context.Context, id uuid.UUID) (model.Message, error) {
	var msg model.Message
	res := m.db.WithContext(ctx).Where("id = ?", id).First(&msg)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.Message{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.Message{}, customErrors.WrapInternal(err, "GetMessage")
	}
	return msg, nil
}

func (m *PostgresMessageRepo) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	res := m.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Message{})
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "DeleteMessage")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrNotFound
	}
	return nil
}

func (m *PostgresMessageRepo) ListMessages(ctx context.Context, vis repo.Visibility, roomID *uuid.UUID, page model.Page) ([]model.Message, int64, error) {
	page = page.Normalize()
	base := m.db.WithContext(ctx).Model(&model.Message{}).
		Joins("JOIN chat_rooms ON chat_rooms.id = messages.room_id").
		Scopes(visibleRooms(vis))
	if roomID != nil {
		base = base.Where("messages.room_id = ?", *roomID)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, customErrors.WrapInternal(err, "CountMessages")
	}

	var msgs []model.Message
	err := base.Session(&gorm.Session{}).
		Select("messages.*").
		Order("messages.created_at DESC").Order("messages.id").
		Limit(page.PerPage).Offset(page.Offset()).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, customErrors.WrapInternal(err, "ListMessages")
	}
	return msgs, total, nil
}
