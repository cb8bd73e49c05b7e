package model

import (
	"time"

	"github.com/google/uuid"
)

type RoomType string

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
	RoomPublic RoomType = "public"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomDirect, RoomGroup, RoomPublic:
		return true
	}
	return false
}

type ParticipantRole string

const (
	ParticipantAdmin  ParticipantRole = "admin"
	ParticipantMember ParticipantRole = "member"
)

func (r ParticipantRole) Valid() bool {
	return r == ParticipantAdmin || r == ParticipantMember
}

type ChatRoom struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name         string            `gorm:"size:128;not null"`
	Type         RoomType          `gorm:"size:16;index;not null"`
	CreatedBy    uuid.UUID         `gorm:"type:uuid;not null"`
	Participants []ChatParticipant `gorm:"foreignKey:RoomID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActiveParticipant returns the user's non-deleted membership, if any.
func (r ChatRoom) ActiveParticipant(userID uuid.UUID) (ChatParticipant, bool) {
	for _, p := range r.Participants {
		if p.UserID == userID && p.Active() {
			return p, true
		}
	}
	return ChatParticipant{}, false
}

type ChatParticipant struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	RoomID    uuid.UUID       `gorm:"type:uuid;index;not null"`
	UserID    uuid.UUID       `gorm:"type:uuid;index;not null"`
	Role      ParticipantRole `gorm:"size:16;not null"`
	JoinedAt  time.Time       `gorm:"not null"`
	DeletedAt *time.Time      `gorm:"index"`
}

func (p ChatParticipant) Active() bool { return p.DeletedAt == nil }

type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID    uuid.UUID `gorm:"type:uuid;index;not null"`
	AuthorID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Page struct {
	Number  int
	PerPage int
}

// MaxPageNumber keeps Offset well inside int range; deeper pages are simply empty.
const MaxPageNumber = 1_000_000

func (p Page) Normalize() Page {
	if p.Number <= 0 {
		p.Number = 1
	}
	if p.Number > MaxPageNumber {
		p.Number = MaxPageNumber
	}
	if p.PerPage <= 0 || p.PerPage > 100 {
		p.PerPage = 30
	}
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }
