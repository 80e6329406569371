package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MuteSenderRequest is the mute payload.
type MuteSenderRequest struct {
	Pattern string `json:"pattern" binding:"required"`
	Reason  string `json:"reason"`
}

// GetMutedSenders returns all active mutes
func (h *Handlers) GetMutedSenders(c *gin.Context) {
	muted, err := h.store.GetMutedSenders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch muted senders",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, muted)
}

// MuteSender mutes an address or bare domain
func (h *Handlers) MuteSender(c *gin.Context) {
	var req MuteSenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	muted, err := h.store.MuteSender(req.Pattern, req.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to mute sender",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, muted)
}

// UnmuteSender removes a mute
func (h *Handlers) UnmuteSender(c *gin.Context) {
	if err := h.store.UnmuteSender(c.Param("pattern")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to unmute sender",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.Status(http.StatusNoContent)
}
