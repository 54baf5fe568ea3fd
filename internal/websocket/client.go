package websocket

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go-chat-realtime/internal/auth"
	"go-chat-realtime/pkg/chat"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	// Buffered outbound frames per connection. A full buffer disconnects.
	SendBufferSize int

	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Send pings to peer with this period. Must be less than PongWait.
	PingInterval time.Duration

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration

	// Time allowed to write a message to the peer.
	WriteWait time.Duration

	// Inbound event rate limit.
	EventsPerSecond int
	EventBurst      int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendBufferSize:  256,
		MaxMessageSize:  4096,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		EventsPerSecond: 10,
		EventBurst:      20,
	}
}

// Client represents a WebSocket client connection
type Client struct {
	id string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames. Never closed; done signals shutdown.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// User information
	userID   string
	username string

	// Rooms this client is subscribed to. Written by the hub only.
	rooms map[string]bool
	mu    sync.RWMutex

	// Connection metadata
	connectedAt time.Time
	lastSeen    atomic.Int64

	limiter *rate.Limiter
	cfg     ClientConfig
	logger  *zap.Logger
}

// NewClient creates a new WebSocket client with a fresh connection id.
func NewClient(conn *websocket.Conn, identity auth.Identity, cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultClientConfig().SendBufferSize
	}

	id := uuid.NewString()
	now := time.Now()
	c := &Client{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, cfg.SendBufferSize),
		done:        make(chan struct{}),
		userID:      identity.UserID,
		username:    identity.DisplayName,
		rooms:       make(map[string]bool),
		connectedAt: now,
		cfg:         cfg,
		logger: logger.With(
			zap.String("conn_id", id),
			zap.String("user_id", identity.UserID),
		),
	}
	c.lastSeen.Store(now.UnixNano())

	if cfg.EventsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), cfg.EventBurst)
	}

	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) GetUserID() string {
	return c.userID
}

func (c *Client) GetUsername() string {
	return c.username
}

// GetRooms returns a sorted copy of subscribed rooms
func (c *Client) GetRooms() []string {
	c.mu.RLock()
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.mu.RUnlock()

	sort.Strings(rooms)
	return rooms
}

func (c *Client) IsInRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = true
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

func (c *Client) clearRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.rooms = make(map[string]bool)
	return rooms
}

func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) UpdateLastSeen() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// Enqueue hands a frame to the write pump without blocking. It returns false
// when the client is closed or its buffer is full.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// SendError queues an error event for this client only.
func (c *Client) SendError(requestID string, err error) {
	if !c.Enqueue(chat.EncodeError(requestID, err)) {
		c.logger.Debug("dropped error event", zap.Error(err))
	}
}

// Done is closed once the client starts shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close asks the write pump to send a close frame and drop the connection,
// which in turn ends the read pump. Safe to call more than once and from any
// goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// ReadPump pumps frames from the websocket connection to handle until the
// connection fails or the client is closed. It runs on the caller's goroutine.
func (c *Client) ReadPump(handle func(c *Client, raw []byte)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Debug("failed to set read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		c.UpdateLastSeen()
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.UpdateLastSeen()

		if !c.allow() {
			c.SendError("", errRateLimited)
			continue
		}

		handle(c, raw)
	}
}

var errRateLimited = fmt.Errorf("%w: rate limit exceeded", chat.ErrProtocol)

func (c *Client) logReadError(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("message exceeded maximum size", zap.Int64("limit", c.cfg.MaxMessageSize))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Debug("client disconnected", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Debug("websocket read ended", zap.Error(err))
	}
}

// WritePump pumps frames from the send buffer to the websocket connection.
// It returns after the client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

func (c *Client) write(messageType int, payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.logger.Debug("failed to set write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		c.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}
