package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const identityContextKey = "bridge_identity"

var errInvalidAuthorization = errors.New("authorization header missing or invalid")

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	id, err := auth.ParseToken(token, h.secretKey)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			h.logger.Info(c.Request.Context(), "token validation failed", "error", err)
		} else {
			h.logger.Warn(c.Request.Context(), "token validation failed", "error", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(identityContextKey, id)
	c.Next()
}

func (h *httpHandler) requireParticipant(c *gin.Context) {
	if id := identity(c); id == nil || id.HealthCode == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "participant token required"})
		return
	}
	c.Next()
}

func (h *httpHandler) requireWorker(c *gin.Context) {
	if id := identity(c); id == nil || !id.Worker {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "worker token required"})
		return
	}
	c.Next()
}

func identity(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}
