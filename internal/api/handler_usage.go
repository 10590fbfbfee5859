package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GetCurrentUsage returns the caller's session state.
func (h *Handler) GetCurrentUsage(c *gin.Context) {
	view, err := h.parking.CurrentUsage(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type startParkingRequest struct {
	SpotID int64  `json:"spot_id" binding:"required"`
	Plate  string `json:"plate"`
}

// PostStartParking starts a session for the caller.
func (h *Handler) PostStartParking(c *gin.Context) {
	var req startParkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	view, err := h.parking.StartParking(c.Request.Context(), req.SpotID, req.Plate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// PostEndParking ends the caller's session and returns the settlement.
func (h *Handler) PostEndParking(c *gin.Context) {
	st, err := h.parking.EndParking(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetReceipts lists the caller's settled sessions, newest first.
// Optional ?since=RFC3339 and ?limit=N.
func (h *Handler) GetReceipts(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		since = t
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		limit = n
	}

	receipts, err := h.parking.Receipts(c.Request.Context(), since, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}
