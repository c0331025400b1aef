package handlers

import (
	"net/http"

	"ekh_mining/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

// SignIn runs the session bootstrap and returns the resulting profile. The
// bootstrap runs on every call, also for a user with a live session.
func (h *Handler) SignIn(c *gin.Context) {
	sess, ok := h.resolve(c, h.Sessions.SignIn)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":      sess.Identity(),
		"profile":   sess.Profile(),
		"purchases": sess.Purchases(),
	})
}

func (h *Handler) SignOut(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	h.Sessions.Remove(userID)
	c.Status(http.StatusNoContent)
}
