package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CollectMining(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	res, err := sess.CollectMining(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"earned":          res.Earned,
		"elapsed_seconds": int64(res.Elapsed.Seconds()),
		"profile":         res.Profile,
	})
}
