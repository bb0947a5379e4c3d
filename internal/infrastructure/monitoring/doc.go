/*
Package monitoring provides Prometheus metrics for the collaboration hub.

# Overview

Metrics cover the admin API, relayed collaboration messages, throttling,
latency, lock transitions, notifications and WebSocket connections.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	defer metrics.Close()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.RecordMessage("in", "WirePreview", 48)

	timer := monitoring.NewTimer(metrics, "relay")
	// ... perform operation ...
	timer.Stop()
*/
package monitoring
