package repo

import (
	"context"
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/google/uuid"
)

type UserRepo interface {
	CreateUser(ctx context.Context, user model.User) (uuid.UUID, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByGoogleID(ctx context.Context, sub string) (model.User, error)
	UpdateUser(ctx context.Context, user model.User) error
}

// RefreshTokenStore persists opaque refresh tokens keyed by their value.
type RefreshTokenStore interface {
	// Create returns errors.ErrAlreadyExists when the value is taken.
	Create(ctx context.Context, token model.RefreshToken) error
	// Get returns errors.ErrNotFound for unknown values. Expired rows are returned as is.
	Get(ctx context.Context, value string) (model.RefreshToken, error)
	// Delete reports whether this call removed the row. Concurrent callers racing
	// on the same value observe true exactly once.
	Delete(ctx context.Context, value string) (bool, error)
	// Rotate removes old and stores next as one unit. It reports false, storing
	// nothing, when old was already gone; ErrAlreadyExists leaves old in place.
	Rotate(ctx context.Context, old string, next model.RefreshToken) (bool, error)
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
