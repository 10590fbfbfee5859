package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/model"
	"parkspot-backend/internal/mw"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription creates or replaces the caller's push subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := mw.CurrentIdentity(c)

	sub := model.PushSubscription{
		Endpoint:  req.Endpoint,
		P256DH:    req.P256DH,
		Auth:      req.Auth,
		Username:  id.Username,
		CreatedAt: time.Now(),
	}
	if err := h.store.SaveSubscription(c.Request.Context(), &sub); err != nil {
		h.respondError(c, apperr.ErrBackendUnavailable.Wrap(err))
		return
	}
	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the caller's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := mw.CurrentIdentity(c)

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint, id.Username); err != nil {
		h.respondError(c, apperr.ErrBackendUnavailable.Wrap(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true // endpoints are matched undecoded
		}
	}
	return "", false
}

// GetSubscription reports whether the caller owns the subscription named
// by ?endpoint=.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		badRequest(c, errors.New("endpoint is required"))
		return
	}
	id, _ := mw.CurrentIdentity(c)

	sub, err := h.store.GetSubscription(c.Request.Context(), raw, id.Username)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			err = apperr.ErrBackendUnavailable.Wrap(err)
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"endpoint": sub.Endpoint, "created_at": sub.CreatedAt})
}
