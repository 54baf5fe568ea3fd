package websocket

import (
	"context"
	"sync"

	"go-chat-realtime/internal/auth"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RoomResolver loads the rooms a user belongs to.
type RoomResolver interface {
	Resolve(ctx context.Context, userID string) ([]string, error)
}

// PresenceTracker records connection lifecycle and announces transitions.
type PresenceTracker interface {
	Connected(userID, connID string, rooms []string) bool
	Disconnected(userID, connID string) bool
}

// Gateway owns the lifecycle of every authenticated websocket connection.
type Gateway struct {
	hub      *Hub
	presence PresenceTracker
	resolver RoomResolver
	handler  *MessageHandler
	cfg      ClientConfig
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

func NewGateway(hub *Hub, presence PresenceTracker, resolver RoomResolver, handler *MessageHandler, cfg ClientConfig, logger *zap.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		hub:      hub,
		presence: presence,
		resolver: resolver,
		handler:  handler,
		cfg:      cfg,
		logger:   logger.Named("gateway"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Serve runs an upgraded connection for identity until it ends. The caller's
// goroutine becomes the connection's read loop.
func (g *Gateway) Serve(conn *websocket.Conn, identity auth.Identity) {
	if !g.track() {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}
	defer g.wg.Done()

	client := NewClient(conn, identity, g.cfg, g.logger)
	log := client.logger

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.WritePump()
	}()

	rooms, err := g.resolver.Resolve(g.ctx, identity.UserID)
	if err != nil {
		log.Warn("admitting connection without rooms", zap.Error(err))
		rooms = nil
		client.SendError("", err)
	}

	g.hub.Attach(client)
	if g.isClosing() {
		client.Close()
	}
	for _, roomID := range rooms {
		g.hub.Subscribe(client, roomID)
	}
	g.presence.Connected(identity.UserID, client.ID(), rooms)
	log.Info("client connected", zap.Int("rooms", len(rooms)))

	client.ReadPump(func(c *Client, raw []byte) {
		g.handler.HandleMessage(g.ctx, c, raw)
	})

	g.hub.Detach(client)
	g.presence.Disconnected(identity.UserID, client.ID())
	client.Close()
	<-writerDone
	log.Info("client disconnected")
}

func (g *Gateway) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *Gateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

// Shutdown refuses new connections, closes the live ones and waits for
// them to deregister, or for ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	closed := g.hub.CloseAll()
	g.logger.Info("closing websocket connections", zap.Int("connections", closed))

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		return ctx.Err()
	}
}
