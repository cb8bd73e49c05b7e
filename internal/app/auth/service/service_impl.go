package service

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	repo "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/config"
	"github.com/go-playground/validator/v10"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
)

var argonParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MiB
	Iterations:  2,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// IdentityProvider resolves an external access token into a verified profile.
type IdentityProvider interface {
	FetchProfile(ctx context.Context, accessToken string) (model.ExternalProfile, error)
}

type authService struct {
	userRepo  repo.UserRepo
	tokens    repo.RefreshTokenStore
	jwtUtil   jwt.JWTUtil
	cfg       *config.Config
	v         *validator.Validate
	hook      SecurityHook
	google    IdentityProvider
	now       func() time.Time
	entropy   io.Reader
	dummyHash string
}

type Service interface {
	Register(context.Context, dto.RegisterDTO, model.RequestMeta) (model.TokenPair, error)
	Login(context.Context, dto.LoginDTO, model.RequestMeta) (model.TokenPair, error)
	GoogleAuth(context.Context, dto.GoogleAuthDTO, model.RequestMeta) (model.TokenPair, error)
	VerifyCredentials(ctx context.Context, email, password string, meta model.RequestMeta) (model.User, error)
	Authenticate(ctx context.Context, rawAccessToken string) (model.User, error)
	Refresh(context.Context, dto.RefreshDTO) (model.TokenPair, error)
	Logout(context.Context, dto.LogoutDTO) error
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type Option func(*authService)

func WithSecurityHook(h SecurityHook) Option {
	return func(a *authService) { a.hook = h }
}

func WithIdentityProvider(p IdentityProvider) Option {
	return func(a *authService) { a.google = p }
}

func WithClock(now func() time.Time) Option {
	return func(a *authService) { a.now = now }
}

// WithEntropy replaces crypto/rand as the source of refresh token bytes.
func WithEntropy(r io.Reader) Option {
	return func(a *authService) { a.entropy = r }
}

func New(
	ur repo.UserRepo,
	ts repo.RefreshTokenStore,
	jm jwt.JWTUtil,
	cfg *config.Config,
	v *validator.Validate,
	opts ...Option,
) (Service, error) {
	a := &authService{
		userRepo: ur, tokens: ts, jwtUtil: jm, cfg: cfg, v: v,
		hook:    nopHook{},
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, o := range opts {
		o(a)
	}

	// сравнение с этим хешем выравнивает время ответа для несуществующих email
	dummy, err := argon2id.CreateHash(uuid.NewString()+cfg.PasswordPepper, argonParams)
	if err != nil {
		return nil, customErrors.WrapInternal(err, "dummy hash")
	}
	a.dummyHash = dummy
	return a, nil
}

func (a *authService) Register(ctx context.Context, in dto.RegisterDTO, meta model.RequestMeta) (model.TokenPair, error) {
	if err := a.v.Struct(in); err != nil {
		return model.TokenPair{}, customErrors.NewInvalidArgument(err.Error())
	}

	passwordHash, err := argon2id.CreateHash(in.Password+a.cfg.PasswordPepper, argonParams)
	if err != nil {
		return model.TokenPair{}, customErrors.WrapInternal(err, "Register")
	}

	email := model.NormalizeEmail(in.Email)
	user := model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: &passwordHash,
		Name:         displayName(in.Name, email),
		Roles:        model.Roles{model.RoleUser},
	}
	if _, err = a.userRepo.CreateUser(ctx, user); err != nil {
		if customErrors.IsAlreadyExists(err) {
			return model.TokenPair{}, customErrors.ErrAlreadyExists
		}
		return model.TokenPair{}, customErrors.WrapInternal(err, "Register")
	}

	a.hook.OnSecurityEvent(ctx, SecurityEvent{
		Type: EventRegistered, UserID: user.ID, Email: email, IP: meta.IP, UserAgent: meta.UserAgent,
	})
	return a.issueTokens(ctx, user)
}

func (a *authService) Login(ctx context.Context, in dto.LoginDTO, meta model.RequestMeta) (model.TokenPair, error) {
	if err := a.v.Struct(in); err != nil {
		return model.TokenPair{}, customErrors.NewInvalidArgument(err.Error())
	}

	user, err := a.VerifyCredentials(ctx, in.Email, in.Password, meta)
	if err != nil {
		return model.TokenPair{}, err
	}
	return a.issueTokens(ctx, user)
}

func (a *authService) Authenticate(ctx context.Context, raw string) (model.User, error) {
	claims, err := a.jwtUtil.ValidateAccessToken(raw)
	if err != nil {
		return model.User{}, err
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.User{}, customErrors.ErrTokenBadClaims
	}

	user, err := a.userRepo.GetUserByID(ctx, uid)
	switch {
	case customErrors.IsNotFound(err):
		return model.User{}, customErrors.ErrTokenBadClaims
	case err != nil:
		return model.User{}, customErrors.WrapInternal(err, "Authenticate")
	}
	return user, nil
}

func (a *authService) issueTokens(ctx context.Context, user model.User) (model.TokenPair, error) {
	rt, err := a.issueRefreshToken(ctx, user.ID)
	if err != nil {
		return model.TokenPair{}, asInternal(err, "StoreRefresh")
	}
	return a.tokenPair(user, rt.Value, a.cfg.RefreshTokenTTL)
}

// tokenPair signs a new access token next to the given refresh value. AccessTTL is
// the configured lifetime, not exp minus a later clock reading.
func (a *authService) tokenPair(user model.User, refresh string, refreshTTL time.Duration) (model.TokenPair, error) {
	at, _, _, err := a.jwtUtil.GenerateAccessToken(user.ID)
	if err != nil {
		return model.TokenPair{}, customErrors.WrapInternal(err, "GenerateAccessToken")
	}
	return model.TokenPair{
		AccessToken:  at,
		RefreshToken: refresh,
		AccessTTL:    a.jwtUtil.AccessTTL(),
		RefreshTTL:   refreshTTL,
		User:         user,
	}, nil
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			return email[:i]
		}
	}
	return email
}
