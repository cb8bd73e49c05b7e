package http

import (
	nethttp "net/http"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/httperr"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/chat/authz"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/chat/service"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ChatHandler struct {
	svc service.Service
}

func NewChatHandler(svc service.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func (h *ChatHandler) ListRooms(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	rooms, total, err := h.svc.ListRooms(c.Request.Context(), principal(c), page)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	items := make([]dto.RoomDTO, 0, len(rooms))
	for _, r := range rooms {
		items = append(items, roomDTO(r))
	}
	c.JSON(nethttp.StatusOK, dto.PageResponse[dto.RoomDTO]{Items: items, Total: total, Page: page.Number, PerPage: page.PerPage})
}

func (h *ChatHandler) CreateRoom(c *gin.Context) {
	var in dto.CreateRoomDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	room, err := h.svc.CreateRoom(c.Request.Context(), principal(c), in)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, roomDTO(room))
}

func (h *ChatHandler) GetRoom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.svc.GetRoom(c.Request.Context(), principal(c), id)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, roomDTO(room))
}

func (h *ChatHandler) RenameRoom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in dto.UpdateRoomDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	room, err := h.svc.RenameRoom(c.Request.Context(), principal(c), id, in)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, roomDTO(room))
}

func (h *ChatHandler) DeleteRoom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteRoom(c.Request.Context(), principal(c), id); err != nil {
		httperr.Abort(c, err)
		return
	}
	c.Status(nethttp.StatusNoContent)
}

func (h *ChatHandler) AddParticipant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in dto.AddParticipantDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	part, err := h.svc.AddParticipant(c.Request.Context(), principal(c), id, in)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, participantDTO(part))
}

func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if err := h.svc.RemoveParticipant(c.Request.Context(), principal(c), roomID, userID); err != nil {
		httperr.Abort(c, err)
		return
	}
	c.Status(nethttp.StatusNoContent)
}

// ListMessages never includes messages of rooms the caller cannot view; the total is
// counted with the same filter.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	var roomID *uuid.UUID
	if raw := c.Query("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httperr.Abort(c, customErrors.NewInvalidArgument("room_id must be a UUID"))
			return
		}
		roomID = &id
	}

	msgs, total, err := h.svc.ListMessages(c.Request.Context(), principal(c), roomID, page)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	items := make([]dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, messageDTO(m))
	}
	c.JSON(nethttp.StatusOK, dto.PageResponse[dto.MessageDTO]{Items: items, Total: total, Page: page.Number, PerPage: page.PerPage})
}

func (h *ChatHandler) PostMessage(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in dto.CreateMessageDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	msg, err := h.svc.PostMessage(c.Request.Context(), principal(c), roomID, in)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, messageDTO(msg))
}

func (h *ChatHandler) GetMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	msg, err := h.svc.GetMessage(c.Request.Context(), principal(c), id)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, messageDTO(msg))
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteMessage(c.Request.Context(), principal(c), id); err != nil {
		httperr.Abort(c, err)
		return
	}
	c.Status(nethttp.StatusNoContent)
}

// principal is nil only when the route was mounted without RequireUser.
func principal(c *gin.Context) *authz.Principal {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return authz.PrincipalOf(u)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		// кривой идентификатор не может указывать на существующий ресурс
		httperr.Abort(c, customErrors.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func pageQuery(c *gin.Context) (model.Page, bool) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httperr.BadRequest(c, err)
		return model.Page{}, false
	}
	return model.Page{Number: q.Page, PerPage: q.PerPage}.Normalize(), true
}

func roomDTO(r model.ChatRoom) dto.RoomDTO {
	parts := make([]dto.ParticipantDTO, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.Active() {
			parts = append(parts, participantDTO(p))
		}
	}
	return dto.RoomDTO{
		ID:           r.ID,
		Name:         r.Name,
		Type:         string(r.Type),
		CreatedBy:    r.CreatedBy,
		Participants: parts,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func participantDTO(p model.ChatParticipant) dto.ParticipantDTO {
	return dto.ParticipantDTO{UserID: p.UserID, Role: string(p.Role), JoinedAt: p.JoinedAt}
}

func messageDTO(m model.Message) dto.MessageDTO {
	return dto.NewMessageDTO(m)
}
