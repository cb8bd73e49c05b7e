package httperr

import (
	"errors"
	"net/http"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/gin-gonic/gin"
)

const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailExists        = "email_exists"
	CodeInvalidToken       = "invalid_token"
	CodeUserNotFound       = "user_not_found"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal_error"
)

type rule struct {
	target  error
	status  int
	code    string
	message string
}

// Порядок важен: более узкие ошибки стоят раньше своих обёрток.
var table = []rule{
	{customErrors.ErrTokenMissing, http.StatusUnauthorized, CodeInvalidToken, "JWT Token not found"},
	{customErrors.ErrTokenExpired, http.StatusUnauthorized, CodeInvalidToken, "Expired JWT Token"},
	{customErrors.ErrExpiredRefreshToken, http.StatusUnauthorized, CodeInvalidToken, "Expired refresh token"},
	{customErrors.ErrInvalidRefreshToken, http.StatusUnauthorized, CodeInvalidToken, "Invalid refresh token"},
	{customErrors.ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken, "Invalid JWT Token"},
	{customErrors.ErrNoPassword, http.StatusUnauthorized, CodeInvalidCredentials, "This account has no password. Sign in with Google instead."},
	{customErrors.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password"},
	{customErrors.ErrUserNotFound, http.StatusUnauthorized, CodeUserNotFound, "User not found"},
	{customErrors.ErrAlreadyExists, http.StatusConflict, CodeEmailExists, "An account with this email already exists"},
	{customErrors.ErrForbidden, http.StatusForbidden, CodeForbidden, "Access denied"},
	{customErrors.ErrNotFound, http.StatusNotFound, CodeNotFound, "Resource not found"},
}

// Resolve maps a service error onto its HTTP status and body. Invalid arguments keep
// their own text; unknown errors become a bare 500.
func Resolve(err error) (int, dto.ErrorResponse) {
	if customErrors.IsInvalidArgument(err) {
		return http.StatusBadRequest, dto.ErrorResponse{Error: CodeInvalidRequest, Message: err.Error()}
	}
	for _, r := range table {
		if errors.Is(err, r.target) {
			return r.status, dto.ErrorResponse{Error: r.code, Message: r.message}
		}
	}
	return http.StatusInternalServerError, dto.ErrorResponse{Error: CodeInternal, Message: "Internal server error"}
}

// Abort writes the mapped error and stops the chain. 5xx causes are kept in c.Errors
// for the request logger.
func Abort(c *gin.Context, err error) {
	status, body := Resolve(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest reports a body or query that could not be bound.
func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: CodeInvalidRequest, Message: err.Error()})
}
