package middleware

import (
	"context"
	"strings"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/httperr"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/gin-gonic/gin"
)

const (
	ctxUser   = "auth.user"
	ctxUserID = "auth.user_id"
)

// Authenticator resolves a raw bearer token into the current user.
type Authenticator interface {
	Authenticate(ctx context.Context, rawAccessToken string) (model.User, error)
}

// RequireUser validates the bearer token before the handler runs. Every failure is a 401
// whose message tells a missing token from an invalid or expired one.
func RequireUser(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			httperr.Abort(c, customErrors.ErrTokenMissing)
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			httperr.Abort(c, err)
			return
		}
		c.Set(ctxUser, user)
		c.Set(ctxUserID, user.ID)
		c.Next()
	}
}

// RequireRole must run after RequireUser.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			httperr.Abort(c, customErrors.ErrTokenMissing)
			return
		}
		if !user.HasRole(role) {
			httperr.Abort(c, customErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (model.User, bool) {
	v, ok := c.Get(ctxUser)
	if !ok {
		return model.User{}, false
	}
	u, ok := v.(model.User)
	return u, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
