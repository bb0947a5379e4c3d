package http

import (
	"html"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
)

// maxLogEntries bounds one forwarded batch.
const maxLogEntries = 200

var logPolicy = bluemonday.StrictPolicy()

// plainText strips markup from editor log text and decodes the entities the
// policy escapes, since log lines are not HTML.
func plainText(s string) string {
	return html.UnescapeString(logPolicy.Sanitize(s))
}

// EditorLogEntry is one log line forwarded by an editor participant
type EditorLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Category  string                 `json:"category"`
	Context   map[string]interface{} `json:"context"`
	Timestamp float64                `json:"timestamp"`
}

// EditorLogRequest is a batch of editor log lines
type EditorLogRequest struct {
	UserID  string           `json:"user_id"`
	Entries []EditorLogEntry `json:"entries"`
}

// ForwardLogs writes log lines sent by an editor into the hub log, so a
// session can be debugged from one place.
func (h *Handlers) ForwardLogs(c *gin.Context) {
	var req EditorLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid log request format")
		return
	}
	if len(req.Entries) == 0 {
		badRequest(c, "No log entries provided")
		return
	}
	if len(req.Entries) > maxLogEntries {
		badRequest(c, "Too many log entries in one batch")
		return
	}

	log := h.log.Named("editor").With(logging.User(req.UserID))
	for _, entry := range req.Entries {
		h.writeEditorLog(log, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func (h *Handlers) writeEditorLog(log *logging.Logger, entry EditorLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+2)
	fields = append(fields,
		zap.String("category", entry.Category),
		zap.Float64("editor_timestamp", entry.Timestamp),
	)
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, plainText(v)))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	msg := plainText(entry.Message)
	switch entry.Level {
	case "error":
		log.Error(msg, fields...)
	case "warning", "warn":
		log.Warn(msg, fields...)
	case "verbose", "debug":
		log.Debug(msg, fields...)
	default:
		log.Info(msg, fields...)
	}
}
