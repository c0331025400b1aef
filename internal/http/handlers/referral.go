package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ClaimReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) ClaimReferral(c *gin.Context) {
	var req ClaimReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}

	res, err := sess.ClaimReferral(c.Request.Context(), req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
