package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

var ErrNoCredential = errors.New("user needs a password or an external identity")

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"uniqueIndex;size:320;not null"`
	PasswordHash *string
	Name         string  `gorm:"size:255"`
	Picture      *string `gorm:"size:2048"`
	GoogleID     *string `gorm:"uniqueIndex;size:255"`
	Roles        Roles   `gorm:"type:text;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate enforces the credential invariant: a user can always sign in one way or another.
func (u User) Validate() error {
	if u.PasswordHash == nil && u.GoogleID == nil {
		return ErrNoCredential
	}
	return nil
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool { return u.HasRole(RoleAdmin) }

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RefreshToken struct {
	Value     string    `gorm:"primaryKey;size:128"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

// Expired uses an exclusive boundary: a token whose expiry equals now is already dead.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	User         User
}

// ExternalProfile is a verified identity returned by an external provider.
type ExternalProfile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// RequestMeta carries caller details for security logging.
type RequestMeta struct {
	IP        string
	UserAgent string
}
