package handlers

import (
	"ekh_mining/internal/http/middleware"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/ws"

	"github.com/gin-gonic/gin"
)

// ProfileStream upgrades to a websocket that pushes every profile change.
func (h *Handler) ProfileStream(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithContext(c.Request.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	userID, _ := middleware.UserID(c)
	release := h.Sessions.Hold(userID)
	defer release()
	ws.NewClient(userID, conn, sess).Run(c.Request.Context())
}
