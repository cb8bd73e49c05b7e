package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims deliberately carries no roles or profile data; callers re-read the user.
type AccessClaims struct {
	jwt.RegisteredClaims
}

type JWTUtil interface {
	GenerateAccessToken(userID uuid.UUID) (token string, exp time.Time, jti string, err error)
	ValidateAccessToken(raw string) (AccessClaims, error)
	AccessTTL() time.Duration
}
