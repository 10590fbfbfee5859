package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkspot-backend/internal/model"
)

// GetSpot returns a spot with its reconciled status and today's timeline.
func (h *Handler) GetSpot(c *gin.Context) {
	id, err := spotID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.parking.Spot(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetTimeline returns the hourly slots of a spot for ?date=YYYY-MM-DD,
// today when absent.
func (h *Handler) GetTimeline(c *gin.Context) {
	id, err := spotID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.parking.Timeline(c.Request.Context(), id, c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetReservationPreview prices a prospective reservation and lists the
// reservations it would overlap.
func (h *Handler) GetReservationPreview(c *gin.Context) {
	id, err := spotID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	preview, err := h.parking.PreviewReservation(c.Request.Context(), id, c.Query("date"), c.Query("start"), c.Query("end"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

type createReservationRequest struct {
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Notes     string `json:"notes"`
}

// PostReservation books a time range on a spot.
func (h *Handler) PostReservation(c *gin.Context) {
	id, err := spotID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.parking.CreateReservation(c.Request.Context(), model.ReservationRequest{
		SpotID:    id,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}
