package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/throttle"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
	"github.com/deepdev237/LivePrint/internal/infrastructure/resilience"
)

const (
	writeWait      = 10 * time.Second
	handshakeWait  = 10 * time.Second
	maxMessageSize = 64 * 1024

	// DefaultHeartbeatInterval is how often an idle client announces itself.
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultLockDuration is requested when SendLockRequest gets no duration.
	DefaultLockDuration = 30 * time.Second
)

var (
	ErrNotConnected = errors.New("client is not connected")
	ErrRejected     = errors.New("hub rejected the connection")
	ErrNodeLocked   = errors.New("node is locked by another user")
	ErrNoBlueprint  = errors.New("no blueprint is open")
)

var defaultBreaker = resilience.New("livebp-dial", resilience.Settings{
	Timeout: 10 * time.Second,
	ReadyToTrip: func(counts resilience.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	},
})

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithBreaker guards Dial with b instead of the shared breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithHeartbeat sets the heartbeat interval. Zero disables heartbeats.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Client) { c.heartbeat = interval }
}

// WithPreviewRate caps outgoing wire previews per second.
func WithPreviewRate(hz int) Option {
	return func(c *Client) {
		if hz > 0 {
			c.throttle.SetInterval(protocol.MessageWirePreview, 1/float64(hz))
		}
	}
}

// WithClock replaces the clock used for timestamps and lock expiry.
func WithClock(clock protocol.Clock) Option {
	return func(c *Client) { c.now = clock }
}

// Client is one editor's connection to a collaboration hub. Handlers run on
// the client's read goroutine and must not block.
type Client struct {
	conn      *websocket.Conn
	dialer    *websocket.Dialer
	breaker   *resilience.Breaker
	throttle  *throttle.Throttler
	heartbeat time.Duration
	now       protocol.Clock
	log       *logging.Logger

	userID    string
	sessionID string
	binary    bool
	connected atomic.Bool

	writeMu sync.Mutex

	mu        sync.RWMutex
	users     []string
	locks     map[uuid.UUID]protocol.NodeLock
	blueprint *protocol.Target
	handlers  handlers

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type handlers struct {
	preview      []func(protocol.WirePreview, protocol.Message)
	operation    []func(protocol.NodeOperation, protocol.Message)
	lock         []func(protocol.NodeLock)
	notification []func(protocol.Notice)
	presence     []func(protocol.Presence)
	blueprint    []func(protocol.BlueprintNotice, protocol.Message)
	remoteError  []func(string)
}

// Dial connects to the hub's stream endpoint at rawURL as name and waits
// for the welcome. An empty name lets the hub pick one.
func Dial(ctx context.Context, rawURL, name string, opts ...Option) (*Client, error) {
	c := &Client{
		dialer:    websocket.DefaultDialer,
		breaker:   defaultBreaker,
		throttle:  throttle.New(),
		heartbeat: DefaultHeartbeatInterval,
		now:       protocol.Now,
		locks:     make(map[uuid.UUID]protocol.NodeLock),
		done:      make(chan struct{}),
	}
	c.throttle.SetEnabled(protocol.MessageHeartbeat, false)
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.NewNop()
	}
	c.log = c.log.Named("client")

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	if name != "" {
		q := u.Query()
		q.Set("name", name)
		u.RawQuery = q.Encode()
	}

	conn, err := resilience.Execute(c.breaker, func() (*websocket.Conn, error) {
		conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
		return conn, err
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)

	if err := c.handshake(); err != nil {
		c.conn.Close()
		return nil, err
	}
	c.connected.Store(true)

	c.wg.Add(1)
	go c.readLoop()
	if c.heartbeat > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop()
	}

	c.log.Info("connected to hub",
		logging.User(c.userID),
		zap.String("session", c.sessionID),
		zap.Int("users", len(c.users)))
	return c, nil
}

func (c *Client) handshake() error {
	_ = c.conn.SetReadDeadline(time.Now().Add(handshakeWait))
	defer c.conn.SetReadDeadline(time.Time{})

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	switch {
	case env.Kind == protocol.KindError:
		return fmt.Errorf("%w: %s", ErrRejected, env.Error)
	case env.Kind != protocol.KindWelcome || env.Welcome == nil:
		return fmt.Errorf("read welcome: unexpected %q frame", env.Kind)
	}

	w := env.Welcome
	c.userID = w.UserID
	c.sessionID = w.SessionID
	c.binary = w.BinaryPreviews
	c.users = append([]string(nil), w.Users...)
	for _, lock := range w.Locks {
		c.locks[lock.NodeID] = lock
	}
	return nil
}

// UserID is the id the hub assigned to this client.
func (c *Client) UserID() string { return c.userID }

// SessionID identifies the hub session.
func (c *Client) SessionID() string { return c.sessionID }

// IsConnected reports whether the connection is still open.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// ConnectedUsers lists the session's users, this client included.
func (c *Client) ConnectedUsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.users...)
}

// Close leaves the session.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		close(c.done)
		err = c.conn.Close()
	})
	c.wg.Wait()
	return err
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		_ = c.conn.Close()
	})
}

// OnWirePreview registers a handler for other users' wire previews.
func (c *Client) OnWirePreview(fn func(protocol.WirePreview, protocol.Message)) {
	c.mu.Lock()
	c.handlers.preview = append(c.handlers.preview, fn)
	c.mu.Unlock()
}

// OnNodeOperation registers a handler for other users' node operations.
func (c *Client) OnNodeOperation(fn func(protocol.NodeOperation, protocol.Message)) {
	c.mu.Lock()
	c.handlers.operation = append(c.handlers.operation, fn)
	c.mu.Unlock()
}

// OnLockChange registers a handler for lock state changes, this client's
// own included.
func (c *Client) OnLockChange(fn func(protocol.NodeLock)) {
	c.mu.Lock()
	c.handlers.lock = append(c.handlers.lock, fn)
	c.mu.Unlock()
}

// OnNotification registers a handler for collaboration notifications.
func (c *Client) OnNotification(fn func(protocol.Notice)) {
	c.mu.Lock()
	c.handlers.notification = append(c.handlers.notification, fn)
	c.mu.Unlock()
}

// OnPresence registers a handler for join and leave updates.
func (c *Client) OnPresence(fn func(protocol.Presence)) {
	c.mu.Lock()
	c.handlers.presence = append(c.handlers.presence, fn)
	c.mu.Unlock()
}

// OnBlueprint registers a handler for other users opening or closing
// blueprints.
func (c *Client) OnBlueprint(fn func(protocol.BlueprintNotice, protocol.Message)) {
	c.mu.Lock()
	c.handlers.blueprint = append(c.handlers.blueprint, fn)
	c.mu.Unlock()
}

// OnError registers a handler for errors the hub reports.
func (c *Client) OnError(fn func(string)) {
	c.mu.Lock()
	c.handlers.remoteError = append(c.handlers.remoteError, fn)
	c.mu.Unlock()
}

func (c *Client) snapshotHandlers() handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

func (c *Client) write(msg protocol.Message) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	data, err := protocol.EncodeEnvelope(protocol.MessageEnvelope(msg))
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			bp := c.blueprint
			c.mu.RUnlock()
			if bp == nil {
				continue
			}
			if err := c.write(protocol.NewHeartbeat(*bp, c.userID)); err != nil {
				c.log.Debug("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.IsConnected() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("connection lost", zap.Error(err))
			}
			return
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.log.Warn("undecodable frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	h := c.snapshotHandlers()
	switch env.Kind {
	case protocol.KindMessage:
		if env.Message != nil {
			c.dispatchMessage(h, *env.Message)
		}
	case protocol.KindPresence:
		if env.Presence == nil {
			return
		}
		c.mu.Lock()
		c.users = append([]string(nil), env.Presence.Users...)
		sort.Strings(c.users)
		c.mu.Unlock()
		for _, fn := range h.presence {
			fn(*env.Presence)
		}
	case protocol.KindNotification:
		if env.Notification == nil {
			return
		}
		for _, fn := range h.notification {
			fn(*env.Notification)
		}
	case protocol.KindError:
		c.log.Debug("hub reported error", zap.String("error", env.Error))
		for _, fn := range h.remoteError {
			fn(env.Error)
		}
	}
}

func (c *Client) dispatchMessage(h handlers, msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageWirePreview:
		p, err := protocol.DecodeWirePreview(msg.Payload)
		if err != nil {
			c.log.Warn("bad wire preview", zap.Error(err))
			return
		}
		for _, fn := range h.preview {
			fn(p, msg)
		}
	case protocol.MessageNodeOperation:
		op, err := protocol.DecodeNodeOperation(msg.Payload)
		if err != nil {
			c.log.Warn("bad node operation", zap.Error(err))
			return
		}
		for _, fn := range h.operation {
			fn(op, msg)
		}
	case protocol.MessageLockRequest, protocol.MessageLockRelease:
		lock, err := protocol.DecodeNodeLock(msg.Payload)
		if err != nil {
			c.log.Warn("bad lock change", zap.Error(err))
			return
		}
		c.mu.Lock()
		if lock.State == protocol.Unlocked {
			delete(c.locks, lock.NodeID)
		} else {
			c.locks[lock.NodeID] = lock
		}
		c.mu.Unlock()
		for _, fn := range h.lock {
			fn(lock)
		}
	case protocol.MessageBlueprintOpened, protocol.MessageBlueprintClosed:
		n, err := protocol.DecodeBlueprintNotice(msg.Payload)
		if err != nil {
			return
		}
		for _, fn := range h.blueprint {
			fn(n, msg)
		}
	}
}
