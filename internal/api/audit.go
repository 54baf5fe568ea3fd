package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	a "go-chat-realtime/internal/audit"
	"go-chat-realtime/internal/auth"

	"github.com/gin-gonic/gin"
)

type AuditHandlers struct {
	service *a.AuditService
}

func NewAuditHandlers(service *a.AuditService) *AuditHandlers {
	return &AuditHandlers{service: service}
}

type ErrorResponse struct {
	Error string `json:"error" example:"authentication error: token expired"`
}

type AuditLogResponse struct {
	ID          uint                   `json:"id" example:"1"`
	Action      string                 `json:"action" example:"NOT_A_MEMBER"`
	ActorID     *string                `json:"actor_id" example:"abc12345"`
	RoomID      *string                `json:"room_id" example:"xyz123"`
	RemoteAddr  string                 `json:"remote_addr,omitempty" example:"10.0.0.7"`
	Description string                 `json:"description" example:"Rejected 'send-message' for room 'xyz123'"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   string                 `json:"created_at" example:"2023-01-01T00:00:00Z"`
}

type AuditLogsResponse struct {
	Logs  []AuditLogResponse `json:"logs"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// GetAuditLogsHandler lists the caller's own rejected actions
// @Summary Get own audit logs
// @Description Get the audit trail recorded for the authenticated user
// @Tags Audit Logs
// @Produce json
// @Security Bearer
// @Param action query string false "Filter by action type"
// @Param room_id query string false "Filter by room ID"
// @Param page query int false "Page number (default: 1)"
// @Param limit query int false "Number of results per page (default: 20, max: 100)"
// @Success 200 {object} AuditLogsResponse "Audit logs retrieved successfully"
// @Failure 401 {object} ErrorResponse "User not authenticated"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/audit [get]
func (h *AuditHandlers) GetAuditLogsHandler(c *gin.Context) {
	userID := c.GetString(auth.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit

	var roomFilter, actionFilter *string
	if roomID := c.Query("room_id"); roomID != "" {
		roomFilter = &roomID
	}
	if action := c.Query("action"); action != "" {
		actionFilter = &action
	}

	logs, total, err := h.service.GetAuditLogs(roomFilter, &userID, actionFilter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit logs"})
		return
	}

	auditLogs := make([]AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		metadata := map[string]interface{}{}
		if log.Metadata != "" {
			if err := json.Unmarshal([]byte(log.Metadata), &metadata); err != nil {
				metadata = map[string]interface{}{}
			}
		}

		auditLogs = append(auditLogs, AuditLogResponse{
			ID:          log.ID,
			Action:      log.Action,
			ActorID:     log.ActorID,
			RoomID:      log.RoomID,
			RemoteAddr:  log.RemoteAddr,
			Description: log.Description,
			Metadata:    metadata,
			CreatedAt:   log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, AuditLogsResponse{
		Logs:  auditLogs,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
