package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkspot-backend/internal/signup"
)

// PostSignup opens a registration wizard at the phone step.
func (h *Handler) PostSignup(c *gin.Context) {
	c.JSON(http.StatusCreated, h.signup.Begin())
}

// GetSignup returns a wizard's current step.
func (h *Handler) GetSignup(c *gin.Context) {
	w, err := h.signup.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type phoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// PostSignupPhone submits the phone number and requests a code.
func (h *Handler) PostSignupPhone(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.signup.SubmitPhone(c.Request.Context(), c.Param("id"), req.Phone)
	h.wizardResponse(c, w, err)
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

// PostSignupCode submits the verification code.
func (h *Handler) PostSignupCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.signup.SubmitCode(c.Request.Context(), c.Param("id"), req.Code)
	h.wizardResponse(c, w, err)
}

// PostSignupProfile submits the account details and registers.
func (h *Handler) PostSignupProfile(c *gin.Context) {
	var req signup.Profile
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.signup.SubmitProfile(c.Request.Context(), c.Param("id"), req)
	h.wizardResponse(c, w, err)
}

// PostSignupBack returns the wizard to its previous step.
func (h *Handler) PostSignupBack(c *gin.Context) {
	w, err := h.signup.Back(c.Param("id"))
	h.wizardResponse(c, w, err)
}

func (h *Handler) wizardResponse(c *gin.Context, w signup.Wizard, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
