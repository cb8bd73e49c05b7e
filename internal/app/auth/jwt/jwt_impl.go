package jwt

import (
	"crypto/rsa"
	"errors"
	"os"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	jwt2 "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type JwtUtilImpl struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	issuer     string
	audience   string
	now        func() time.Time
}

type Option func(*JwtUtilImpl)

// WithClock overrides time.Now for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(j *JwtUtilImpl) { j.now = now }
}

func NewJWTUtil(cfg *config.Config, opts ...Option) (*JwtUtilImpl, error) {
	privPem, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, customErrors.WrapInternal(err, "read private key")
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPem)
	if err != nil {
		return nil, customErrors.WrapInternal(err, "parse private key")
	}

	pubPem, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, customErrors.WrapInternal(err, "read public key")
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPem)
	if err != nil {
		return nil, customErrors.WrapInternal(err, "parse public key")
	}

	return NewJWTUtilFromKeys(privKey, pubKey, cfg.AccessTokenTTL, cfg.Issuer, cfg.Audience, opts...), nil
}

func NewJWTUtilFromKeys(priv *rsa.PrivateKey, pub *rsa.PublicKey, accessTTL time.Duration, issuer, audience string, opts ...Option) *JwtUtilImpl {
	j := &JwtUtilImpl{
		privateKey: priv,
		publicKey:  pub,
		accessTTL:  accessTTL,
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

func (j *JwtUtilImpl) AccessTTL() time.Duration { return j.accessTTL }

func (j *JwtUtilImpl) GenerateAccessToken(userID uuid.UUID) (token string, exp time.Time, jti string, err error) {
	jti = uuid.NewString()
	now := j.now()

	claims := jwt2.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    j.issuer,
			Audience:  jwt.ClaimStrings{j.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTTL)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.privateKey)
	if err != nil {
		return "", time.Time{}, "", customErrors.WrapInternal(err, "sign access token")
	}

	return signed, claims.ExpiresAt.Time, jti, nil
}

// ValidateAccessToken checks, in order: presence, shape, signature, expiry, issuer and audience.
// Expiry is exclusive: a token whose exp equals the current second is already expired.
func (j *JwtUtilImpl) ValidateAccessToken(raw string) (jwt2.AccessClaims, error) {
	if raw == "" {
		return jwt2.AccessClaims{}, customErrors.ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(raw, &jwt2.AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return j.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return jwt2.AccessClaims{}, customErrors.ErrTokenMalformed
		}
		return jwt2.AccessClaims{}, customErrors.ErrTokenBadSignature
	}

	claims, ok := token.Claims.(*jwt2.AccessClaims)
	if !ok {
		return jwt2.AccessClaims{}, customErrors.WrapInternal(
			errors.New("claims not AccessClaims"), "ValidateAccessToken",
		)
	}

	if claims.ExpiresAt == nil {
		return jwt2.AccessClaims{}, customErrors.ErrTokenBadClaims
	}
	if !claims.ExpiresAt.Time.After(j.now()) {
		return jwt2.AccessClaims{}, customErrors.ErrTokenExpired
	}

	if j.issuer != "" && claims.Issuer != j.issuer {
		return jwt2.AccessClaims{}, customErrors.ErrTokenBadClaims
	}

	if j.audience != "" {
		okAudi := false
		for _, a := range claims.Audience {
			if a == j.audience {
				okAudi = true
				break
			}
		}
		if !okAudi {
			return jwt2.AccessClaims{}, customErrors.ErrTokenBadClaims
		}
	}

	return *claims, nil
}
