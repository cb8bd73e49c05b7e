package service

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/google/uuid"
)

func (a *authService) Refresh(ctx context.Context, in dto.RefreshDTO) (model.TokenPair, error) {
	if err := a.v.Struct(in); err != nil {
		return model.TokenPair{}, customErrors.NewInvalidArgument(err.Error())
	}

	stored, err := a.tokens.Get(ctx, in.RefreshToken)
	switch {
	case customErrors.IsNotFound(err):
		return model.TokenPair{}, customErrors.ErrInvalidRefreshToken
	case err != nil:
		return model.TokenPair{}, customErrors.WrapInternal(err, "Refresh")
	}

	now := a.now()
	if stored.Expired(now) {
		if _, err := a.tokens.Delete(ctx, stored.Value); err != nil {
			return model.TokenPair{}, customErrors.WrapInternal(err, "Refresh")
		}
		return model.TokenPair{}, customErrors.ErrExpiredRefreshToken
	}

	user, err := a.userRepo.GetUserByID(ctx, stored.UserID)
	switch {
	case customErrors.IsNotFound(err):
		// сирота: владелец удалён, токен больше не нужен
		if _, err := a.tokens.Delete(ctx, stored.Value); err != nil {
			return model.TokenPair{}, customErrors.WrapInternal(err, "Refresh")
		}
		return model.TokenPair{}, customErrors.ErrUserNotFound
	case err != nil:
		return model.TokenPair{}, customErrors.WrapInternal(err, "Refresh")
	}

	if !a.cfg.RefreshTokenRotation {
		return a.tokenPair(user, stored.Value, stored.ExpiresAt.Sub(now))
	}

	// ротация: старый токен удаляется и новый записывается одной операцией хранилища,
	// выигрывает только тот вызов, который действительно удалил строку
	lost := false
	next, err := a.mintRefreshToken(ctx, user.ID, func(ctx context.Context, tok model.RefreshToken) error {
		swapped, err := a.tokens.Rotate(ctx, stored.Value, tok)
		if err != nil {
			return err
		}
		lost = !swapped
		return nil
	})
	if err != nil {
		return model.TokenPair{}, asInternal(err, "Refresh")
	}
	if lost {
		a.hook.OnSecurityEvent(ctx, SecurityEvent{
			Type: EventRefreshReplay, UserID: user.ID, Email: user.Email, Reason: "already_rotated",
		})
		return model.TokenPair{}, customErrors.ErrInvalidRefreshToken
	}
	return a.tokenPair(user, next.Value, a.cfg.RefreshTokenTTL)
}

// Logout answers the same way whether or not the token existed.
func (a *authService) Logout(ctx context.Context, in dto.LogoutDTO) error {
	if err := a.v.Struct(in); err != nil {
		return customErrors.NewInvalidArgument(err.Error())
	}

	if _, err := a.tokens.Delete(ctx, in.RefreshToken); err != nil {
		return customErrors.WrapInternal(err, "Logout")
	}
	return nil
}

// RevokeAll drops every refresh token of the user. Access tokens already handed out
// stay valid until they expire.
func (a *authService) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := a.tokens.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, customErrors.WrapInternal(err, "RevokeAll")
	}
	a.hook.OnSecurityEvent(ctx, SecurityEvent{Type: EventTokensRevoked, UserID: userID, Count: n})
	return n, nil
}

func (a *authService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := a.tokens.PurgeExpired(ctx, a.now())
	if err != nil {
		return 0, customErrors.WrapInternal(err, "PurgeExpired")
	}
	return n, nil
}
