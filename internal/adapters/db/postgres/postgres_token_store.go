package postgres

import (
	"context"
	"errors"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresTokenStore struct {
	db *gorm.DB
}

func NewPostgresTokenStore(db *gorm.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

func (s *PostgresTokenStore) Create(ctx context.Context, token model.RefreshToken) error {
	token.CreatedAt = token.CreatedAt.UTC()
	token.ExpiresAt = token.ExpiresAt.UTC()

	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		if isUniqueViolation(err) {
			return customErrors.ErrAlreadyExists
		}
		return customErrors.WrapInternal(err, "CreateRefreshToken")
	}
	return nil
}

func (s *PostgresTokenStore) Get(ctx context.Context, value string) (model.RefreshToken, error) {
	var t model.RefreshToken
	res := s.db.WithContext(ctx).Where("value = ?", value).First(&t)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.RefreshToken{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.RefreshToken{}, customErrors.WrapInternal(err, "GetRefreshToken")
	}
	return t, nil
}

// Delete is a single conditional DELETE; RowsAffected tells the caller whether it won.
func (s *PostgresTokenStore) Delete(ctx context.Context, value string) (bool, error) {
	res := s.db.WithContext(ctx).Where("value = ?", value).Delete(&model.RefreshToken{})
	if err := res.Error; err != nil {
		return false, customErrors.WrapInternal(err, "DeleteRefreshToken")
	}
	return res.RowsAffected == 1, nil
}

func (s *PostgresTokenStore) Rotate(ctx context.Context, old string, next model.RefreshToken) (bool, error) {
	next.CreatedAt = next.CreatedAt.UTC()
	next.ExpiresAt = next.ExpiresAt.UTC()

	var swapped bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("value = ?", old).Delete(&model.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		if err := tx.Create(&next).Error; err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return false, customErrors.ErrAlreadyExists
		}
		return false, customErrors.WrapInternal(err, "RotateRefreshToken")
	}
	return swapped, nil
}

func (s *PostgresTokenStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.RefreshToken{})
	if err := res.Error; err != nil {
		return 0, customErrors.WrapInternal(err, "DeleteAllForUser")
	}
	return res.RowsAffected, nil
}

func (s *PostgresTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.RefreshToken{})
	if err := res.Error; err != nil {
		return 0, customErrors.WrapInternal(err, "PurgeExpired")
	}
	return res.RowsAffected, nil
}
