package http

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the admin API under /api.
func RegisterRoutes(r gin.IRouter, h *Handlers) {
	api := r.Group("/api")

	api.GET("/health", h.Health)
	api.GET("/session", h.Session)
	api.GET("/users", h.ListUsers)
	api.GET("/blueprints", h.ListBlueprints)

	// Collaboration control
	api.POST("/collaboration/toggle", h.ToggleCollaboration)
	api.PUT("/collaboration", h.SetCollaboration)
	api.GET("/debug", h.GetDebug)
	api.PUT("/debug", h.SetDebug)
	api.GET("/latency", h.GetLatency)
	api.PUT("/latency", h.SetLatency)
	api.GET("/throttle", h.GetThrottle)
	api.PUT("/throttle", h.SetThrottle)

	// Locks
	api.GET("/locks", h.ListLocks)
	api.DELETE("/locks", h.ClearLocks)

	// Stats and history
	api.GET("/stats", h.GetStats)
	api.GET("/report", h.GetReport)
	api.POST("/reset", h.ResetStats)
	api.GET("/notifications", h.ListNotifications)
	api.DELETE("/notifications", h.ClearNotifications)
	api.GET("/messages", h.ListMessages)
	api.GET("/export", h.ExportMessages)
	api.POST("/logs", h.ForwardLogs)

	// Diagnostics
	api.GET("/selftest", h.ListSelfTests)
	api.POST("/selftest", h.RunSelfTest)
	api.GET("/manifest", h.GetManifest)
	api.GET("/manifest/diff", h.DiffManifest)
}
