package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/google/uuid"
)

const (
	refreshTokenBytes    = 32
	refreshTokenAttempts = 3
)

// issueRefreshToken persists a fresh opaque value before handing it out.
func (a *authService) issueRefreshToken(ctx context.Context, uid uuid.UUID) (model.RefreshToken, error) {
	return a.mintRefreshToken(ctx, uid, a.tokens.Create)
}

// mintRefreshToken draws values until persist accepts one. persist reports a
// taken value with ErrAlreadyExists; any other error ends the loop as is.
func (a *authService) mintRefreshToken(ctx context.Context, uid uuid.UUID, persist func(context.Context, model.RefreshToken) error) (model.RefreshToken, error) {
	for attempt := 0; attempt < refreshTokenAttempts; attempt++ {
		value, err := a.newRefreshValue()
		if err != nil {
			return model.RefreshToken{}, customErrors.WrapInternal(err, "refresh token entropy")
		}

		now := a.now()
		tok := model.RefreshToken{
			Value:     value,
			UserID:    uid,
			CreatedAt: now,
			ExpiresAt: now.Add(a.cfg.RefreshTokenTTL),
		}
		err = persist(ctx, tok)
		if err == nil {
			return tok, nil
		}
		if !customErrors.IsAlreadyExists(err) {
			return model.RefreshToken{}, err
		}
	}
	return model.RefreshToken{}, customErrors.WrapInternal(errors.New("refresh token collision"), "StoreRefresh")
}

func (a *authService) newRefreshValue() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(a.entropy, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func asInternal(err error, op string) error {
	if customErrors.IsInternal(err) {
		return err
	}
	return customErrors.WrapInternal(err, op)
}
