package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/journal"
	"github.com/deepdev237/LivePrint/internal/domain/protocol"
)

// GetStats returns the session stats snapshot
func (h *Handlers) GetStats(c *gin.Context) {
	defer h.metrics.Track("session", "stats")()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.hub.Stats(),
	})
}

// GetReport returns the performance report as text
func (h *Handlers) GetReport(c *gin.Context) {
	c.String(http.StatusOK, h.hub.Perf().Report())
}

// ResetStats clears performance and throttle counters
func (h *Handlers) ResetStats(c *gin.Context) {
	h.hub.ResetStats()
	h.log.Info("stats reset")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Statistics reset",
	})
}

// ListNotifications lists the active collaboration notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	active := h.hub.Notifications().Active()
	notices := make([]protocol.Notice, 0, len(active))
	for _, n := range active {
		notices = append(notices, n.Notice())
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": notices,
		"count":         len(notices),
	})
}

// ClearNotifications dismisses every active notification
func (h *Handlers) ClearNotifications(c *gin.Context) {
	h.hub.Notifications().ClearAll()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListMessages returns journaled messages: the newest ?limit= (default 50),
// or everything recorded at or after ?since= (Unix seconds).
func (h *Handlers) ListMessages(c *gin.Context) {
	var entries []journal.Entry
	if raw := c.Query("since"); raw != "" {
		since, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "Invalid since: must be Unix seconds")
			return
		}
		entries = h.hub.Journal().Since(since)
	} else {
		limit, ok := queryInt(c, "limit", 50)
		if !ok {
			return
		}
		entries = h.hub.Journal().Recent(limit)
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": entries,
		"count":    len(entries),
		"capacity": h.hub.Journal().Capacity(),
	})
}

// ExportMessages streams the journal as zstd-compressed NDJSON
func (h *Handlers) ExportMessages(c *gin.Context) {
	defer h.metrics.Track("journal", "export")()

	name := fmt.Sprintf("livebp-journal-%s.ndjson.zst", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/zstd")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)

	n, err := h.hub.Journal().Export(c.Writer)
	if err != nil {
		// Headers are gone; all that is left is to log and cut the stream.
		h.log.Error("journal export failed", zap.Error(err))
		_ = c.Error(err)
		return
	}
	h.log.Debug("journal exported", zap.Int("entries", n))
}
