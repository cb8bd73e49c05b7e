package service

import (
	"context"
	"fmt"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/google/uuid"
)

var errGoogleDisabled = fmt.Errorf("%w: google sign-in is disabled", customErrors.ErrNotFound)

func (a *authService) GoogleAuth(ctx context.Context, in dto.GoogleAuthDTO, meta model.RequestMeta) (model.TokenPair, error) {
	if !a.cfg.GoogleSSOEnabled || a.google == nil {
		return model.TokenPair{}, errGoogleDisabled
	}
	if err := a.v.Struct(in); err != nil {
		return model.TokenPair{}, customErrors.NewInvalidArgument(err.Error())
	}

	profile, err := a.google.FetchProfile(ctx, in.AccessToken)
	if err != nil {
		if customErrors.IsInvalidCredentials(err) {
			a.hook.OnSecurityEvent(ctx, SecurityEvent{
				Type: EventLoginFailure, IP: meta.IP, UserAgent: meta.UserAgent, Reason: "google_rejected",
			})
			return model.TokenPair{}, customErrors.ErrInvalidCredentials
		}
		return model.TokenPair{}, customErrors.WrapInternal(err, "FetchProfile")
	}
	if profile.Subject == "" || profile.Email == "" {
		return model.TokenPair{}, customErrors.ErrInvalidCredentials
	}

	user, err := a.upsertExternalUser(ctx, profile)
	if err != nil {
		return model.TokenPair{}, err
	}

	a.hook.OnSecurityEvent(ctx, SecurityEvent{
		Type: EventExternalLogin, UserID: user.ID, Email: user.Email, IP: meta.IP, UserAgent: meta.UserAgent,
	})
	return a.issueTokens(ctx, user)
}

// upsertExternalUser looks the profile up by subject first, then relinks an existing
// account with the same email, and creates an external-only account otherwise.
func (a *authService) upsertExternalUser(ctx context.Context, p model.ExternalProfile) (model.User, error) {
	email := model.NormalizeEmail(p.Email)

	user, err := a.userRepo.GetUserByGoogleID(ctx, p.Subject)
	switch {
	case err == nil:
		if updateProfile(&user, p.Name, p.Picture) {
			if err := a.userRepo.UpdateUser(ctx, user); err != nil {
				return model.User{}, customErrors.WrapInternal(err, "UpdateUser")
			}
		}
		return user, nil
	case !customErrors.IsNotFound(err):
		return model.User{}, customErrors.WrapInternal(err, "GetUserByGoogleID")
	}

	user, err = a.userRepo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		sub := p.Subject
		user.GoogleID = &sub
		updateProfile(&user, p.Name, p.Picture)
		if err := a.userRepo.UpdateUser(ctx, user); err != nil {
			return model.User{}, customErrors.WrapInternal(err, "UpdateUser")
		}
		return user, nil
	case !customErrors.IsNotFound(err):
		return model.User{}, customErrors.WrapInternal(err, "GetUserByEmail")
	}

	sub := p.Subject
	user = model.User{
		ID:       uuid.New(),
		Email:    email,
		GoogleID: &sub,
		Name:     displayName(p.Name, email),
		Roles:    model.Roles{model.RoleUser},
	}
	if p.Picture != "" {
		pic := p.Picture
		user.Picture = &pic
	}
	if _, err := a.userRepo.CreateUser(ctx, user); err != nil {
		return model.User{}, customErrors.WrapInternal(err, "CreateUser")
	}
	return user, nil
}

func updateProfile(u *model.User, name, picture string) (changed bool) {
	if name != "" && u.Name != name {
		u.Name, changed = name, true
	}
	if picture != "" && (u.Picture == nil || *u.Picture != picture) {
		pic := picture
		u.Picture = &pic
		changed = true
	}
	return
}
