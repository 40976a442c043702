// README: Base handler utilities (JSON helpers, error-kind → status mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/auth"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/modules/payment"
	"dishpatch/internal/modules/verification"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps the sentinel error kinds of every module to HTTP
// statuses in one place. Unknown errors become opaque 500s.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrPrecondition):
		writeError(c, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, payment.ErrConflict),
		errors.Is(err, payment.ErrNotPaid),
		errors.Is(err, verification.ErrExists):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, verification.ErrBlocked),
		errors.Is(err, verification.ErrRateLimited):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, verification.ErrExpired),
		errors.Is(err, verification.ErrInvalid):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, payment.ErrSignature):
		writeError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, payment.ErrUpstream),
		errors.Is(err, auth.ErrSendFailed):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
