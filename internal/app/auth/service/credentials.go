package service

import (
	"context"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"

	"github.com/alexedwards/argon2id"
)

// VerifyCredentials never tells the caller whether the email exists: unknown emails and
// wrong passwords both cost one argon2id comparison and both yield ErrInvalidCredentials.
func (a *authService) VerifyCredentials(ctx context.Context, email, password string, meta model.RequestMeta) (model.User, error) {
	email = model.NormalizeEmail(email)
	fail := func(reason string, err error) (model.User, error) {
		a.hook.OnSecurityEvent(ctx, SecurityEvent{
			Type: EventLoginFailure, Email: email, IP: meta.IP, UserAgent: meta.UserAgent, Reason: reason,
		})
		return model.User{}, err
	}

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	switch {
	case customErrors.IsNotFound(err):
		_, _ = argon2id.ComparePasswordAndHash(password+a.cfg.PasswordPepper, a.dummyHash)
		return fail("unknown_email", customErrors.ErrInvalidCredentials)
	case err != nil:
		return model.User{}, customErrors.WrapInternal(err, "VerifyCredentials")
	}

	if user.PasswordHash == nil {
		return fail("no_password", customErrors.ErrNoPassword)
	}

	ok, err := argon2id.ComparePasswordAndHash(password+a.cfg.PasswordPepper, *user.PasswordHash)
	if err != nil {
		return model.User{}, customErrors.WrapInternal(err, "VerifyCredentials")
	}
	if !ok {
		return fail("bad_password", customErrors.ErrInvalidCredentials)
	}

	a.hook.OnSecurityEvent(ctx, SecurityEvent{
		Type: EventLoginSuccess, UserID: user.ID, Email: email, IP: meta.IP, UserAgent: meta.UserAgent,
	})
	return user, nil
}
