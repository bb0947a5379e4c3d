package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	t.Cleanup(m.Close)
	return m, reg
}

// sum adds every sample of a counter or gauge family.
func sum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func TestRecordMessage(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordMessage("in", "WirePreview", 40)
	m.RecordMessage("out", "WirePreview", 40)
	m.RecordThrottled("WirePreview")

	assert.Equal(t, 2.0, sum(t, reg, "livebp_messages_total"))
	assert.Equal(t, 80.0, sum(t, reg, "livebp_message_payload_bytes_total"))
	assert.Equal(t, 1.0, sum(t, reg, "livebp_messages_throttled_total"))
}

func TestGaugesAndSnapshot(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.SetParticipants(3)
	m.SetLocksActive(2)
	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	assert.Equal(t, 3.0, sum(t, reg, "livebp_participants"))
	assert.Equal(t, 2.0, sum(t, reg, "livebp_locks_active"))
	assert.Equal(t, int64(1), m.Snapshot().ActiveConnections)
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, reg := newTestMetrics(t)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/api/locks/:node", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/locks/abc", nil))

	assert.Equal(t, 1.0, sum(t, reg, "livebp_http_requests_total"))
	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestTimer(t *testing.T) {
	m, _ := newTestMetrics(t)
	ms := NewTimer(m, "relay").Stop()
	assert.GreaterOrEqual(t, ms, 0.0)
}
