package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PresenceReader answers presence queries from the in-process registry.
type PresenceReader interface {
	IsOnline(userID string) bool
	OnlineUserIDs() []string
	ConnectionCount(userID string) int
}

type PresenceHandlers struct {
	presence PresenceReader
}

func NewPresenceHandlers(presence PresenceReader) *PresenceHandlers {
	return &PresenceHandlers{presence: presence}
}

type OnlineUsersResponse struct {
	OnlineUserIDs []string `json:"online_user_ids"`
}

type UserPresenceResponse struct {
	UserID      string `json:"user_id" example:"a1b2c3d4"`
	Online      bool   `json:"online" example:"true"`
	Connections int    `json:"connections" example:"2"`
}

// @Summary List online users
// @Tags presence
// @Security Bearer
// @Produce json
// @Success 200 {object} OnlineUsersResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /api/presence [get]
func (h *PresenceHandlers) GetOnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, OnlineUsersResponse{OnlineUserIDs: h.presence.OnlineUserIDs()})
}

// @Summary Get a user's presence
// @Tags presence
// @Security Bearer
// @Param user_id path string true "User ID"
// @Produce json
// @Success 200 {object} UserPresenceResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /api/presence/{user_id} [get]
func (h *PresenceHandlers) GetUserPresence(c *gin.Context) {
	userID := c.Param("user_id")
	c.JSON(http.StatusOK, UserPresenceResponse{
		UserID:      userID,
		Online:      h.presence.IsOnline(userID),
		Connections: h.presence.ConnectionCount(userID),
	})
}
