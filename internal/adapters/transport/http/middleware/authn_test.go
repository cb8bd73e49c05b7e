package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type authStub struct {
	users map[string]model.User
	errs  map[string]error
}

func (s authStub) Authenticate(_ context.Context, raw string) (model.User, error) {
	if err, ok := s.errs[raw]; ok {
		return model.User{}, err
	}
	if u, ok := s.users[raw]; ok {
		return u, nil
	}
	return model.User{}, customErrors.ErrTokenBadSignature
}

func protected(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stub := authStub{
		users: map[string]model.User{
			"user":  {ID: uuid.New(), Roles: model.Roles{model.RoleUser}},
			"admin": {ID: uuid.New(), Roles: model.Roles{model.RoleUser, model.RoleAdmin}},
		},
		errs: map[string]error{"old": customErrors.ErrTokenExpired},
	}

	r := gin.New()
	api := r.Group("/", RequireUser(stub))
	api.GET("/me", func(c *gin.Context) {
		u, ok := CurrentUser(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": u.ID})
	})
	api.GET("/admin", RequireRole(model.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func call(r *gin.Engine, path, auth string) (*httptest.ResponseRecorder, dto.ErrorResponse) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)

	var body dto.ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRequireUser_Messages(t *testing.T) {
	r := protected(t)

	cases := []struct {
		name, header, message string
	}{
		{"no header", "", "JWT Token not found"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "JWT Token not found"},
		{"empty bearer", "Bearer ", "JWT Token not found"},
		{"bad token", "Bearer forged", "Invalid JWT Token"},
		{"expired", "Bearer old", "Expired JWT Token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := call(r, "/me", tc.header)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, "invalid_token", body.Error)
			require.Equal(t, tc.message, body.Message)
		})
	}
}

func TestRequireUser_PassesUser(t *testing.T) {
	r := protected(t)

	w, _ := call(r, "/me", "bearer user")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"id"`)
}

func TestRequireRole(t *testing.T) {
	r := protected(t)

	w, body := call(r, "/admin", "Bearer user")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden", body.Error)

	w, _ = call(r, "/admin", "Bearer admin")
	require.Equal(t, http.StatusNoContent, w.Code)
}
