package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/deepdev237/LivePrint/internal/domain/session"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
	"github.com/deepdev237/LivePrint/internal/manifest"
)

// Version is reported by Root and Health.
const Version = "0.3.0"

// Handlers contains all admin HTTP handlers
type Handlers struct {
	hub       *session.Hub
	manifests *manifest.Table
	modules   manifest.Registry
	metrics   *HandlerMetrics
	log       *logging.Logger
}

// NewHandlers creates a new handler set. A nil modules registry validates
// manifests against the embedded engine module list.
func NewHandlers(
	hub *session.Hub,
	manifests *manifest.Table,
	modules manifest.Registry,
	metrics *HandlerMetrics,
	log *logging.Logger,
) *Handlers {
	if manifests == nil {
		manifests = manifest.Default()
	}
	if modules == nil {
		modules = manifest.EngineRegistry()
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		hub:       hub,
		manifests: manifests,
		modules:   modules,
		metrics:   metrics,
		log:       log.Named("admin"),
	}
}

// Root handles the liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "LiveBP collaboration hub",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	settings := h.hub.Settings()
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"version":      Version,
		"session_id":   h.hub.SessionID().String(),
		"enabled":      h.hub.Enabled(),
		"participants": len(h.hub.ConnectedUsers()),
		"max_users":    settings.MaxConcurrentUsers,
		"active_locks": h.hub.Locks().Count(),
		"journal":      h.hub.Journal().Persistence(),
	})
}

// Session describes the collaboration session and its settings
func (h *Handlers) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"session_id":           h.hub.SessionID().String(),
		"enabled":              h.hub.Enabled(),
		"debug":                h.hub.Debug(),
		"simulated_latency_ms": h.hub.SimulatedLatency().Milliseconds(),
		"settings":             h.hub.Settings(),
	})
}

// ListUsers lists the connected participants
func (h *Handlers) ListUsers(c *gin.Context) {
	users := h.hub.ConnectedUsers()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   users,
		"count":   len(users),
	})
}

// ListBlueprints lists blueprints that participants have open
func (h *Handlers) ListBlueprints(c *gin.Context) {
	blueprints := h.hub.Blueprints()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"blueprints": blueprints,
		"count":      len(blueprints),
	})
}

// badRequest writes the standard failure body with status 400.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}

// queryInt reads a non-negative integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "Invalid "+name+": must be a non-negative integer")
		return 0, false
	}
	return n, true
}
