package http

import (
	nethttp "net/http"
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/httperr"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/auth/service"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const tokenType = "Bearer"

type AuthHandler struct {
	svc service.Service
	cfg *config.Config
}

func NewAuthHandler(svc service.Service, cfg *config.Config) *AuthHandler {
	return &AuthHandler{svc: svc, cfg: cfg}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var in dto.LoginDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	pair, err := h.svc.Login(c.Request.Context(), in, requestMeta(c))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, tokenResponse(pair))
}

func (h *AuthHandler) Register(c *gin.Context) {
	var in dto.RegisterDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	pair, err := h.svc.Register(c.Request.Context(), in, requestMeta(c))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, tokenResponse(pair))
}

func (h *AuthHandler) Google(c *gin.Context) {
	var in dto.GoogleAuthDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	pair, err := h.svc.GoogleAuth(c.Request.Context(), in, requestMeta(c))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, tokenResponse(pair))
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var in dto.RefreshDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), in)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, tokenResponse(pair))
}

// Logout отвечает 204 и для уже отозванного токена.
func (h *AuthHandler) Logout(c *gin.Context) {
	var in dto.LogoutDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		httperr.BadRequest(c, err)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), in); err != nil {
		httperr.Abort(c, err)
		return
	}
	c.Status(nethttp.StatusNoContent)
}

func (h *AuthHandler) Status(c *gin.Context) {
	c.JSON(nethttp.StatusOK, dto.StatusResponse{
		AuthMethods: dto.AuthMethods{
			EmailPassword: true,
			GoogleSSO:     h.cfg.GoogleSSOEnabled,
		},
		APIVersion: h.cfg.APIVersion,
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		httperr.Abort(c, customErrors.ErrTokenMissing)
		return
	}
	c.JSON(nethttp.StatusOK, dto.MeResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Picture:   u.Picture,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
	})
}

func (h *AuthHandler) RevokeTokens(c *gin.Context) {
	uid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.BadRequest(c, err)
		return
	}
	n, err := h.svc.RevokeAll(c.Request.Context(), uid)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, dto.RevokeResponse{Revoked: n})
}

func requestMeta(c *gin.Context) model.RequestMeta {
	return model.RequestMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func tokenResponse(p model.TokenPair) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    int64(p.AccessTTL.Round(time.Second) / time.Second),
		User: dto.UserDTO{
			ID:      p.User.ID,
			Email:   p.User.Email,
			Name:    p.User.Name,
			Picture: p.User.Picture,
		},
	}
}
