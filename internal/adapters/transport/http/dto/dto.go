package dto

import (
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/google/uuid"
)

type RegisterDTO struct {
	Email    string `json:"email"    validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Name     string `json:"name"     validate:"omitempty,max=255"`
}

type LoginDTO struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshDTO struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutDTO struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type GoogleAuthDTO struct {
	AccessToken string `json:"access_token" validate:"required"`
}

type UserDTO struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Picture *string   `json:"picture"`
}

type TokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int64   `json:"expires_in"`
	User         UserDTO `json:"user"`
}

type MeResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   *string   `json:"picture"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

type AuthMethods struct {
	EmailPassword bool `json:"email_password"`
	GoogleSSO     bool `json:"google_sso"`
}

type StatusResponse struct {
	AuthMethods AuthMethods `json:"auth_methods"`
	APIVersion  string      `json:"api_version"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type RevokeResponse struct {
	Revoked int64 `json:"revoked"`
}

type CreateRoomDTO struct {
	Name           string      `json:"name"            validate:"required,min=1,max=128"`
	Type           string      `json:"type"            validate:"required,oneof=direct group public"`
	ParticipantIDs []uuid.UUID `json:"participant_ids" validate:"omitempty,max=100"`
}

type UpdateRoomDTO struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
}

type AddParticipantDTO struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   string    `json:"role"    validate:"omitempty,oneof=admin member"`
}

type CreateMessageDTO struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

type PageQuery struct {
	Page    int `form:"page"`
	PerPage int `form:"per_page"`
}

type ParticipantDTO struct {
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type RoomDTO struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	Type         string           `json:"type"`
	CreatedBy    uuid.UUID        `json:"created_by"`
	Participants []ParticipantDTO `json:"participants"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type MessageDTO struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessageDTO(m model.Message) MessageDTO {
	return MessageDTO{
		ID:        m.ID,
		RoomID:    m.RoomID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

type PageResponse[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}
