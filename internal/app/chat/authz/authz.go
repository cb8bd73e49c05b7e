// Package authz decides what a principal may do with chat rooms and messages.
package authz

import (
	authModel "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/repo"
	"github.com/google/uuid"
)

// Principal is the authenticated caller. A nil *Principal is anonymous.
type Principal struct {
	UserID uuid.UUID
	Roles  []string
}

func PrincipalOf(u authModel.User) *Principal {
	return &Principal{UserID: u.ID, Roles: append([]string(nil), u.Roles...)}
}

func (p *Principal) isGlobalAdmin() bool {
	for _, r := range p.Roles {
		if r == authModel.RoleAdmin {
			return true
		}
	}
	return false
}

// implicitView lists room types everybody may view without membership.
// CanView and VisibilityFilter both read it.
var implicitView = []model.RoomType{model.RoomPublic}

func viewableByAnyone(t model.RoomType) bool {
	for _, it := range implicitView {
		if it == t {
			return true
		}
	}
	return false
}

func CanView(p *Principal, room model.ChatRoom) bool {
	if p == nil {
		return false
	}
	if viewableByAnyone(room.Type) {
		return true
	}
	_, ok := room.ActiveParticipant(p.UserID)
	return ok
}

func CanEdit(p *Principal, room model.ChatRoom) bool {
	if p == nil {
		return false
	}
	if p.isGlobalAdmin() {
		return true
	}
	part, ok := room.ActiveParticipant(p.UserID)
	return ok && part.Role == model.ParticipantAdmin
}

// CanDelete: room admins cannot drop public rooms, only global admins can.
func CanDelete(p *Principal, room model.ChatRoom) bool {
	if p == nil {
		return false
	}
	if room.Type == model.RoomPublic {
		return p.isGlobalAdmin()
	}
	return CanEdit(p, room)
}

func CanViewMessage(p *Principal, _ model.Message, room model.ChatRoom) bool {
	return CanView(p, room)
}

func CanDeleteMessage(p *Principal, msg model.Message) bool {
	return p != nil && p.UserID == msg.AuthorID
}

// VisibilityFilter is CanView expressed as a query predicate for collection reads.
func VisibilityFilter(p *Principal) repo.Visibility {
	if p == nil {
		return repo.Visibility{Deny: true}
	}
	return repo.Visibility{
		ImplicitTypes: append([]model.RoomType(nil), implicitView...),
		ParticipantID: p.UserID,
	}
}

type Resource string

const (
	ResourceRoom    Resource = "room"
	ResourceMessage Resource = "message"
)

type Action string

const (
	ActionView   Action = "VIEW"
	ActionEdit   Action = "EDIT"
	ActionDelete Action = "DELETE"
)

// Target carries what a rule needs. Message rules read Room for VIEW.
type Target struct {
	Room    model.ChatRoom
	Message model.Message
}

type rule func(p *Principal, t Target) bool

type key struct {
	res Resource
	act Action
}

var rules = map[key]rule{
	{ResourceRoom, ActionView}:   func(p *Principal, t Target) bool { return CanView(p, t.Room) },
	{ResourceRoom, ActionEdit}:   func(p *Principal, t Target) bool { return CanEdit(p, t.Room) },
	{ResourceRoom, ActionDelete}: func(p *Principal, t Target) bool { return CanDelete(p, t.Room) },
	{ResourceMessage, ActionView}: func(p *Principal, t Target) bool {
		return CanViewMessage(p, t.Message, t.Room)
	},
	{ResourceMessage, ActionDelete}: func(p *Principal, t Target) bool { return CanDeleteMessage(p, t.Message) },
}

// Allowed dispatches through the rule table. Unknown pairs are denied.
func Allowed(p *Principal, res Resource, act Action, t Target) bool {
	r, ok := rules[key{res, act}]
	if !ok {
		return false
	}
	return r(p, t)
}
