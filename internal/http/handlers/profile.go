package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetProfile(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	p, err := sess.RefreshProfile(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p, "state": sess.State().String()})
}

// SilentRefresh kicks a refresh without waiting for the outcome.
func (h *Handler) SilentRefresh(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.SilentRefreshProfile(c.Request.Context())
	c.Status(http.StatusAccepted)
}

func (h *Handler) ReferralCode(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	p := sess.Profile()
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":            p.ReferralCode,
		"total_referrals": p.TotalReferrals,
		"referred_by":     p.ReferredBy,
	})
}
