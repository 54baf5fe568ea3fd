package api

import (
	"net/http"
	"sort"
	"time"

	"go-chat-realtime/internal/auth"
	"go-chat-realtime/internal/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HandshakeAuditor records refused handshakes.
type HandshakeAuditor interface {
	LogAuthRejected(remoteAddr, userAgent, reason string) error
}

type WebSocketHandler struct {
	hub           *websocket.Hub
	gateway       *websocket.Gateway
	authenticator *auth.Authenticator
	audit         HandshakeAuditor
	upgrader      gorilla.Upgrader
	logger        *zap.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, gateway *websocket.Gateway, authenticator *auth.Authenticator, audit HandshakeAuditor, origins *OriginPolicy, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		gateway:       gateway,
		authenticator: authenticator,
		audit:         audit,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		logger: logger.Named("ws-handler"),
	}
}

// @Summary WebSocket connection endpoint
// @Description Upgrade HTTP connection to WebSocket for real-time chat
// @Tags websocket
// @Security Bearer
// @Param token query string false "Signed access token"
// @Success 101 {string} string "Switching Protocols"
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 429 {object} ErrorResponse "Too Many Requests"
// @Router /ws [get]
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	identity, err := h.authenticator.Authenticate(auth.CredentialFromRequest(c.Request))
	if err != nil {
		h.logger.Info("rejected websocket handshake",
			zap.String("remote_addr", c.ClientIP()),
			zap.Error(err),
		)
		if h.audit != nil {
			if auditErr := h.audit.LogAuthRejected(c.ClientIP(), c.Request.UserAgent(), err.Error()); auditErr != nil {
				h.logger.Warn("failed to write audit log", zap.Error(auditErr))
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Info("websocket upgrade failed", zap.String("user_id", identity.UserID), zap.Error(err))
		return
	}

	h.gateway.Serve(conn, identity)
}

// @Summary Get WebSocket connection info
// @Description Get information about active WebSocket connections
// @Tags websocket
// @Security Bearer
// @Produce json
// @Success 200 {object} WebSocketInfoResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /ws/info [get]
func (h *WebSocketHandler) GetConnectionInfo(c *gin.Context) {
	clients := h.hub.Clients()

	users := make([]WebSocketUserInfo, 0, len(clients))
	for _, client := range clients {
		users = append(users, userInfo(client))
	}
	sortUsers(users)

	c.JSON(http.StatusOK, WebSocketInfoResponse{
		TotalConnections: len(clients),
		RoomStats:        h.hub.RoomCounts(),
		ActiveUsers:      users,
		ServerTime:       time.Now().UTC().Format(time.RFC3339),
	})
}

// @Summary Get room connection stats
// @Description Get statistics about connections subscribed to a room
// @Tags websocket
// @Security Bearer
// @Param room_id path string true "Room ID"
// @Produce json
// @Success 200 {object} RoomConnectionStatsResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /ws/rooms/{room_id}/stats [get]
func (h *WebSocketHandler) GetRoomStats(c *gin.Context) {
	roomID := c.Param("room_id")
	clients := h.hub.GetRoomClients(roomID)

	users := make([]WebSocketUserInfo, 0, len(clients))
	distinct := make(map[string]struct{}, len(clients))
	recent := 0
	cutoff := time.Now().Add(-5 * time.Minute)
	for _, client := range clients {
		users = append(users, userInfo(client))
		distinct[client.GetUserID()] = struct{}{}
		if client.LastSeen().After(cutoff) {
			recent++
		}
	}
	sortUsers(users)

	c.JSON(http.StatusOK, RoomConnectionStatsResponse{
		RoomID:         roomID,
		TotalUsers:     len(distinct),
		Connections:    len(clients),
		ConnectedUsers: users,
		RecentActivity: recent,
	})
}

type WebSocketInfoResponse struct {
	TotalConnections int                 `json:"total_connections"`
	RoomStats        map[string]int      `json:"room_stats"`
	ActiveUsers      []WebSocketUserInfo `json:"active_users"`
	ServerTime       string              `json:"server_time"`
}

type WebSocketUserInfo struct {
	ConnectionID string   `json:"connection_id"`
	UserID       string   `json:"user_id"`
	Username     string   `json:"username"`
	ConnectedAt  string   `json:"connected_at"`
	LastSeen     string   `json:"last_seen"`
	Rooms        []string `json:"rooms"`
}

type RoomConnectionStatsResponse struct {
	RoomID         string              `json:"room_id"`
	TotalUsers     int                 `json:"total_users"`
	Connections    int                 `json:"connections"`
	ConnectedUsers []WebSocketUserInfo `json:"connected_users"`
	RecentActivity int                 `json:"recent_activity"`
}

func userInfo(client *websocket.Client) WebSocketUserInfo {
	return WebSocketUserInfo{
		ConnectionID: client.ID(),
		UserID:       client.GetUserID(),
		Username:     client.GetUsername(),
		ConnectedAt:  client.ConnectedAt().UTC().Format(time.RFC3339),
		LastSeen:     client.LastSeen().UTC().Format(time.RFC3339),
		Rooms:        client.GetRooms(),
	}
}

func sortUsers(users []WebSocketUserInfo) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].UserID != users[j].UserID {
			return users[i].UserID < users[j].UserID
		}
		return users[i].ConnectionID < users[j].ConnectionID
	})
}
