package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListLocks lists every active node lock
func (h *Handlers) ListLocks(c *gin.Context) {
	locks := h.hub.Locks().Snapshot()
	if user := c.Query("user"); user != "" {
		filtered := locks[:0]
		for _, l := range locks {
			if l.UserID == user {
				filtered = append(filtered, l)
			}
		}
		locks = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"locks":   locks,
		"count":   len(locks),
	})
}

// ClearLocks drops every lock, or only those of ?user=
func (h *Handlers) ClearLocks(c *gin.Context) {
	defer h.metrics.Track("locks", "clear")()

	user := c.Query("user")
	var cleared int
	if user != "" {
		cleared = h.hub.ClearUserLocks(user)
	} else {
		cleared = h.hub.ClearLocks()
	}
	h.log.Info("locks cleared", zap.String("user", user), zap.Int("cleared", cleared))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cleared": cleared,
		"user":    user,
	})
}
