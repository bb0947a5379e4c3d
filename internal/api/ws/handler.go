package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/session"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
	"github.com/deepdev237/LivePrint/internal/infrastructure/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Config bounds inbound traffic per connection.
type Config struct {
	RatePerSecond float64
	Burst         int
}

// DefaultConfig allows generous bursts of wire previews.
func DefaultConfig() Config {
	return Config{RatePerSecond: 200, Burst: 400}
}

// Handler bridges WebSocket connections to a collaboration hub.
type Handler struct {
	hub      *session.Hub
	metrics  *monitoring.Metrics
	log      *logging.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler. metrics may be nil.
func NewHandler(hub *session.Hub, metrics *monitoring.Metrics, log *logging.Logger, cfg Config) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.RatePerSecond <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RatePerSecond)
	}
	return &Handler{
		hub:     hub,
		metrics: metrics,
		log:     log.Named("ws"),
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // editors connect from arbitrary hosts
			},
		},
	}
}

// HandleConnection upgrades the request, joins the participant named by the
// "name" query parameter and pumps envelopes until either side closes.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	p, err := h.hub.Join(c.Query("name"))
	if err != nil {
		h.writeError(conn, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, conn, p)
	}()

	h.readPump(ctx, conn, p)

	if err := h.hub.Leave(p.UserID); err != nil && !errors.Is(err, session.ErrUnknownParticipant) {
		h.log.Warn("leave failed", logging.User(p.UserID), zap.Error(err))
	}
	cancel()
	<-writerDone
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, p *session.Participant) {
	limiter := rate.NewLimiter(rate.Limit(h.cfg.RatePerSecond), h.cfg.Burst)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", logging.User(p.UserID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			if h.metrics != nil {
				h.metrics.RecordDropped("rate_limited")
			}
			continue
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			h.hub.SendError(p.UserID, err.Error())
			continue
		}
		if env.Kind != protocol.KindMessage || env.Message == nil {
			h.hub.SendError(p.UserID, "unsupported frame kind: "+string(env.Kind))
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordMessage("in", env.Message.Type.String(), len(data))
		}

		if err := h.hub.Publish(ctx, p.UserID, *env.Message); err != nil {
			if errors.Is(err, session.ErrUnknownParticipant) {
				return
			}
			if !session.Silent(err) && !errors.Is(err, session.ErrNodeLocked) {
				h.hub.SendError(p.UserID, err.Error())
			}
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, p *session.Participant) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case env, ok := <-p.Outbound():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			data, err := protocol.EncodeEnvelope(env)
			if err != nil {
				h.log.Error("encode envelope failed", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("websocket write failed", logging.User(p.UserID), zap.Error(err))
				return
			}
			if h.metrics != nil && env.Message != nil {
				h.metrics.RecordMessage("out", env.Message.Type.String(), len(data))
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeError(conn *websocket.Conn, msg string) {
	data, err := protocol.EncodeEnvelope(protocol.ErrorEnvelope(msg))
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, data)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg),
		time.Now().Add(writeWait))
}
