package api

import (
	"net/http"

	a "go-chat-realtime/internal/auth"
	"go-chat-realtime/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

// StorageHealth reports the state of the storage circuit breaker.
type StorageHealth interface {
	State() gobreaker.State
}

type Router struct {
	ws               *WebSocketHandler
	ph               *PresenceHandlers
	adh              *AuditHandlers
	am               *a.AuthMiddleware
	handshakeLimiter *middleware.IPRateLimiter
	storage          StorageHealth
}

func NewRouter(ws *WebSocketHandler, ph *PresenceHandlers, adh *AuditHandlers, am *a.AuthMiddleware, handshakeLimiter *middleware.IPRateLimiter, storage StorageHealth) *Router {
	return &Router{
		ws:               ws,
		ph:               ph,
		adh:              adh,
		am:               am,
		handshakeLimiter: handshakeLimiter,
		storage:          storage,
	}
}

func (r *Router) RegisterRoutes(router *gin.Engine) {
	{
		unprotected := router.Group("/")
		unprotected.GET("/hc", HealthCheckHandler)
		unprotected.GET("/ready", ReadinessHandler(r.storage))
		unprotected.GET("/ws", middleware.RateLimitMiddleware(r.handshakeLimiter), r.ws.HandleWebSocket)
	}

	{
		stats := router.Group("/ws")
		stats.Use(r.am.RequireAuth())
		stats.GET("/info", r.ws.GetConnectionInfo)
		stats.GET("/rooms/:room_id/stats", r.ws.GetRoomStats)
	}

	{
		protected := router.Group("/api")
		protected.Use(r.am.RequireAuth())
		protected.GET("/presence", r.ph.GetOnlineUsers)
		protected.GET("/presence/:user_id", r.ph.GetUserPresence)
		protected.GET("/audit", r.adh.GetAuditLogsHandler)
	}
}

func HealthCheckHandler(c *gin.Context) {
	c.String(http.StatusOK, "Running")
}

type ReadinessResponse struct {
	Status  string `json:"status" example:"ready"`
	Storage string `json:"storage" example:"closed"`
}

// ReadinessHandler reports 503 while the storage circuit is open.
func ReadinessHandler(storage StorageHealth) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := storage.State()
		if state == gobreaker.StateOpen {
			c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "degraded", Storage: state.String()})
			return
		}
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready", Storage: state.String()})
	}
}
