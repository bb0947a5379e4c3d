package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/session"
)

// ToggleCollaboration flips collaboration on or off
func (h *Handlers) ToggleCollaboration(c *gin.Context) {
	defer h.metrics.Track("collaboration", "toggle")()

	enabled := h.hub.Toggle()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"enabled": enabled,
	})
}

// SetCollaboration enables or disables collaboration
func (h *Handlers) SetCollaboration(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	defer h.metrics.Track("collaboration", "set")()

	h.hub.SetEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"enabled": h.hub.Enabled(),
	})
}

// GetDebug reports whether debug mode is on
func (h *Handlers) GetDebug(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"debug":   h.hub.Debug(),
	})
}

// SetDebug switches verbose logging and debug mode
func (h *Handlers) SetDebug(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	h.hub.SetDebug(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"debug":   h.hub.Debug(),
	})
}

// GetLatency returns the simulated network latency
func (h *Handlers) GetLatency(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"latency_ms": h.hub.SimulatedLatency().Milliseconds(),
	})
}

// SetLatency changes the simulated network latency
func (h *Handlers) SetLatency(c *gin.Context) {
	var req struct {
		LatencyMs *int64 `json:"latency_ms" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.hub.SetSimulatedLatency(time.Duration(*req.LatencyMs) * time.Millisecond); err != nil {
		if errors.Is(err, session.ErrInvalidLatency) {
			badRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"latency_ms": h.hub.SimulatedLatency().Milliseconds(),
	})
}

// GetThrottle lists the throttling settings of every message type
func (h *Handlers) GetThrottle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"settings": h.hub.Throttler().Settings(),
	})
}

// SetThrottle changes throttling for one message type
func (h *Handlers) SetThrottle(c *gin.Context) {
	var req struct {
		Type     string   `json:"type" binding:"required"`
		Enabled  *bool    `json:"enabled"`
		Interval *float64 `json:"interval"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	t, err := protocol.ParseMessageType(req.Type)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Enabled == nil && req.Interval == nil {
		badRequest(c, "Nothing to change: set enabled or interval")
		return
	}
	if req.Interval != nil && *req.Interval < 0 {
		badRequest(c, "Invalid interval: must not be negative")
		return
	}

	th := h.hub.Throttler()
	if req.Enabled != nil {
		th.SetEnabled(t, *req.Enabled)
	}
	if req.Interval != nil {
		th.SetInterval(t, *req.Interval)
	}
	h.log.Info("throttle updated",
		zap.String("type", t.String()),
		zap.Bool("enabled", th.Enabled(t)),
		zap.Float64("interval", th.Interval(t)))

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"type":     t.String(),
		"enabled":  th.Enabled(t),
		"interval": th.Interval(t),
	})
}
