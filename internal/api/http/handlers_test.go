package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdev237/LivePrint/internal/domain/journal"
	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/session"
	"github.com/deepdev237/LivePrint/internal/infrastructure/config"
)

func newTestAPI(t *testing.T) (*gin.Engine, *session.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	settings := config.DefaultSettings()
	settings.StressTestMessageCount = 200
	settings.StressTestUserCount = 2
	hub, err := session.New(session.Options{Settings: settings})
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	r := gin.New()
	RegisterRoutes(r, NewHandlers(hub, nil, nil, NewHandlerMetrics(nil), nil))
	return r, hub
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	r, hub := newTestAPI(t)
	_, err := hub.Join("alice")
	require.NoError(t, err)

	w := do(t, r, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["participants"])
	assert.Equal(t, true, body["enabled"])
	persist := body["journal"].(map[string]any)
	assert.Equal(t, false, persist["enabled"])
}

func TestUsersAndSession(t *testing.T) {
	r, hub := newTestAPI(t)
	for _, name := range []string{"bob", "alice"} {
		_, err := hub.Join(name)
		require.NoError(t, err)
	}

	body := decode(t, do(t, r, http.MethodGet, "/api/users", nil))
	assert.Equal(t, float64(2), body["count"])
	users := body["users"].([]any)
	assert.Equal(t, "alice", users[0].(map[string]any)["user_id"])

	body = decode(t, do(t, r, http.MethodGet, "/api/session", nil))
	assert.Equal(t, hub.SessionID().String(), body["session_id"])
	assert.Contains(t, body["settings"], "max_concurrent_users")
}

func TestCollaborationToggle(t *testing.T) {
	r, hub := newTestAPI(t)
	hub.Locks().RequestLock(uuid.New(), "alice", 0)

	body := decode(t, do(t, r, http.MethodPost, "/api/collaboration/toggle", nil))
	assert.Equal(t, false, body["enabled"])
	assert.False(t, hub.Enabled())
	assert.Zero(t, hub.Locks().Count(), "disabling clears locks")

	body = decode(t, do(t, r, http.MethodPut, "/api/collaboration", gin.H{"enabled": true}))
	assert.Equal(t, true, body["enabled"])

	w := do(t, r, http.MethodPut, "/api/collaboration", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebugAndLatency(t *testing.T) {
	r, hub := newTestAPI(t)

	body := decode(t, do(t, r, http.MethodPut, "/api/debug", gin.H{"enabled": true}))
	assert.Equal(t, true, body["debug"])
	assert.True(t, hub.Debug())

	tests := []struct {
		name   string
		ms     int64
		status int
	}{
		{"zero", 0, http.StatusOK},
		{"max", 5000, http.StatusOK},
		{"too high", 5001, http.StatusBadRequest},
		{"negative", -1, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPut, "/api/latency", gin.H{"latency_ms": tt.ms})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	body = decode(t, do(t, r, http.MethodGet, "/api/latency", nil))
	assert.Equal(t, float64(5000), body["latency_ms"])
}

func TestThrottleSettings(t *testing.T) {
	r, hub := newTestAPI(t)

	body := decode(t, do(t, r, http.MethodGet, "/api/throttle", nil))
	assert.Len(t, body["settings"], len(protocol.MessageTypes()))

	w := do(t, r, http.MethodPut, "/api/throttle", gin.H{"type": "NodeOperation", "enabled": true, "interval": 0.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, hub.Throttler().Enabled(protocol.MessageNodeOperation))
	assert.Equal(t, 0.5, hub.Throttler().Interval(protocol.MessageNodeOperation))

	tests := map[string]gin.H{
		"unknown type":   {"type": "Teleport", "enabled": true},
		"nothing to set": {"type": "Heartbeat"},
		"negative":       {"type": "Heartbeat", "interval": -1},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/api/throttle", req).Code)
		})
	}
}

func TestLocks(t *testing.T) {
	r, hub := newTestAPI(t)
	a, b := uuid.New(), uuid.New()
	require.True(t, hub.Locks().RequestLock(a, "alice", 0))
	require.True(t, hub.Locks().RequestLock(b, "bob", 0))

	body := decode(t, do(t, r, http.MethodGet, "/api/locks", nil))
	assert.Equal(t, float64(2), body["count"])

	body = decode(t, do(t, r, http.MethodGet, "/api/locks?user=bob", nil))
	assert.Equal(t, float64(1), body["count"])

	body = decode(t, do(t, r, http.MethodDelete, "/api/locks?user=alice", nil))
	assert.Equal(t, float64(1), body["cleared"])
	assert.False(t, hub.Locks().IsLocked(a))
	assert.True(t, hub.Locks().IsLocked(b))

	body = decode(t, do(t, r, http.MethodDelete, "/api/locks", nil))
	assert.Equal(t, float64(1), body["cleared"])
	assert.Zero(t, hub.Locks().Count())
}

func TestStatsReportReset(t *testing.T) {
	r, hub := newTestAPI(t)
	hub.Perf().RecordSent(protocol.MessageNodeOperation, 64)

	body := decode(t, do(t, r, http.MethodGet, "/api/stats", nil))
	stats := body["stats"].(map[string]any)
	perf := stats["performance"].(map[string]any)
	assert.Equal(t, float64(1), perf["total_messages_sent"])

	w := do(t, r, http.MethodGet, "/api/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, w.Body.String())

	do(t, r, http.MethodPost, "/api/reset", nil)
	assert.Zero(t, hub.Perf().Metrics().TotalMessagesSent)
}

func TestNotifications(t *testing.T) {
	r, hub := newTestAPI(t)
	hub.Notifications().UserJoined("alice", "Alice")

	body := decode(t, do(t, r, http.MethodGet, "/api/notifications", nil))
	require.Equal(t, float64(1), body["count"])
	notice := body["notifications"].([]any)[0].(map[string]any)
	assert.Equal(t, "alice", notice["user_id"])

	do(t, r, http.MethodDelete, "/api/notifications", nil)
	assert.Zero(t, hub.Notifications().ActiveCount())
}

func journalMessages(t *testing.T, hub *session.Hub, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := hub.Journal().Append(context.Background(), protocol.Message{
			Type:        protocol.MessageHeartbeat,
			BlueprintID: uuid.New(),
			GraphID:     uuid.New(),
			UserID:      "alice",
			Timestamp:   protocol.Now(),
		})
		require.NoError(t, err)
	}
}

func TestMessagesAndExport(t *testing.T) {
	r, hub := newTestAPI(t)
	journalMessages(t, hub, 5)

	body := decode(t, do(t, r, http.MethodGet, "/api/messages?limit=3", nil))
	assert.Equal(t, float64(3), body["count"])

	body = decode(t, do(t, r, http.MethodGet, "/api/messages?since=0", nil))
	assert.Equal(t, float64(5), body["count"])

	body = decode(t, do(t, r, http.MethodGet, "/api/messages?since=99999999999", nil))
	assert.Equal(t, float64(0), body["count"])

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/messages?limit=-2", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/messages?since=yesterday", nil).Code)

	w := do(t, r, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zstd", w.Header().Get("Content-Type"))
	entries, err := journal.ReadExport(w.Body)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestSelfTest(t *testing.T) {
	r, _ := newTestAPI(t)

	w := do(t, r, http.MethodPost, "/api/selftest?test=locks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	report := body["report"].(map[string]any)
	assert.Equal(t, float64(3), report["runs"])
	assert.Contains(t, body["text"], "LiveBP Self-Test Report")

	w = do(t, r, http.MethodPost, "/api/selftest?test=teleport", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body = decode(t, do(t, r, http.MethodGet, "/api/selftest", nil))
	assert.Contains(t, body["tests"], "stress")
}

func TestManifest(t *testing.T) {
	r, _ := newTestAPI(t)

	body := decode(t, do(t, r, http.MethodGet, "/api/manifest", nil))
	assert.Len(t, body["manifests"], 4)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "A", body["canonical"])

	body = decode(t, do(t, r, http.MethodGet, "/api/manifest?module=LiveBPEditor&variant=a", nil))
	assert.Equal(t, true, body["valid"])
	m := body["manifests"].([]any)[0].(map[string]any)
	assert.Equal(t, "LiveBPEditor", m["module"])
	assert.Contains(t, m["public"], "LiveBPCore")

	body = decode(t, do(t, r, http.MethodGet, "/api/manifest?module=LiveBPCore&variant=B", nil))
	assert.Equal(t, false, body["valid"])

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/manifest?variant=C", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/manifest?module=Nope", nil).Code)
}

func TestManifestDiff(t *testing.T) {
	r, _ := newTestAPI(t)

	body := decode(t, do(t, r, http.MethodGet, "/api/manifest/diff?module=LiveBPEditor", nil))
	diff := body["diff"].(map[string]any)
	assert.Equal(t, []any{"BlueprintEditorModule"}, diff["public_added"])
	assert.Equal(t, false, body["same"])

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/manifest/diff", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/manifest/diff?module=Nope", nil).Code)
}

func TestForwardLogs(t *testing.T) {
	r, _ := newTestAPI(t)

	w := do(t, r, http.MethodPost, "/api/logs", EditorLogRequest{
		UserID: "alice",
		Entries: []EditorLogEntry{
			{Level: "warning", Message: "<b>slow</b> frame", Category: "LogLiveBP", Context: map[string]interface{}{"ms": 40.0}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["entries_received"])

	assert.Equal(t, "slow frame", plainText("<b>slow</b> frame"))
	assert.Equal(t, "Tom & Jerry's", plainText("Tom & Jerry's"))

	w = do(t, r, http.MethodPost, "/api/logs", EditorLogRequest{UserID: "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
