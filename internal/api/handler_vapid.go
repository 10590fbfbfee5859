package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkspot-backend/internal/apperr"
)

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		h.respondError(c, apperr.ErrBackendUnavailable.WithMessage("vapid keys are not configured"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
