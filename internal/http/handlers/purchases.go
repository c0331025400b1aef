package handlers

import (
	"net/http"

	"ekh_mining/internal/service"

	"github.com/gin-gonic/gin"
)

// SyncPurchases re-reads the purchase ledger and brings the mining rate in line.
func (h *Handler) SyncPurchases(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	rate, err := sess.SyncPurchases(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins_per_second": rate})
}

func (h *Handler) ListPurchases(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	rate, err := sess.SyncPurchases(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	list := sess.Purchases()
	c.JSON(http.StatusOK, gin.H{
		"purchases":        list,
		"completed_usd":    service.CompletedTotal(list),
		"auto_mining_rate": service.CalculateAutoMiningRate(list),
		"coins_per_second": rate,
	})
}
