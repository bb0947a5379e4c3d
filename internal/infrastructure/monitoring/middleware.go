package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures operation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	name    string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, name string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		name:    name,
	}
}

// Stop stops the timer, records the duration and returns it in milliseconds
func (t *Timer) Stop() float64 {
	ms := float64(time.Since(t.start)) / float64(time.Millisecond)
	t.metrics.RecordTiming(t.name, ms)
	return ms
}
