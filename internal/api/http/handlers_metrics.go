package http

import (
	"github.com/deepdev237/LivePrint/internal/infrastructure/monitoring"
)

// HandlerMetrics wraps handlers with timing metrics
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper. A nil metrics records
// nothing.
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// Track times one admin operation. Call the returned func when it is done.
func (hm *HandlerMetrics) Track(component, operation string) func() {
	if hm == nil || hm.metrics == nil {
		return func() {}
	}
	timer := monitoring.NewTimer(hm.metrics, "admin."+component+"."+operation)
	return func() { timer.Stop() }
}
