package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code. Internal errors are logged and
// answered with a generic message.
func (h *httpHandler) writeError(c *gin.Context, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), msg, "error", err, "path", c.FullPath())
		c.JSON(code, gin.H{"error": common.ErrorInternal.Error()})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
