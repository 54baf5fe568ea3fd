package audit

import (
	"encoding/json"

	. "go-chat-realtime/pkg/chat"

	"gorm.io/gorm"
)

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Action constants for audit logging
const (
	ActionAuthRejected = "AUTH_REJECTED"
	ActionNotAMember   = "NOT_A_MEMBER"
)

type AuditMetadata struct {
	Reason    string `json:"reason,omitempty"`
	Event     string `json:"event,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// LogAuthRejected records a refused websocket handshake.
func (s *AuditService) LogAuthRejected(remoteAddr, userAgent, reason string) error {
	metadata := AuditMetadata{
		Reason:    reason,
		UserAgent: userAgent,
	}
	metadataJSON, _ := json.Marshal(metadata)

	auditLog := AuditLog{
		Action:      ActionAuthRejected,
		RemoteAddr:  remoteAddr,
		Description: "Rejected websocket handshake",
		Metadata:    string(metadataJSON),
	}

	return s.db.Create(&auditLog).Error
}

// LogNotAMember records an attempt to use a room the actor does not belong to.
func (s *AuditService) LogNotAMember(actorID, roomID, event string) error {
	metadata := AuditMetadata{
		Event: event,
	}
	metadataJSON, _ := json.Marshal(metadata)

	auditLog := AuditLog{
		Action:      ActionNotAMember,
		ActorID:     &actorID,
		RoomID:      &roomID,
		Description: "Rejected '" + event + "' for room '" + roomID + "'",
		Metadata:    string(metadataJSON),
	}

	return s.db.Create(&auditLog).Error
}

// GetAuditLogs retrieves audit logs with pagination and filtering
func (s *AuditService) GetAuditLogs(roomID *string, actorID *string, action *string, limit, offset int) ([]AuditLog, int64, error) {
	query := s.db.Model(&AuditLog{})

	if roomID != nil {
		query = query.Where("room_id = ?", *roomID)
	}
	if actorID != nil {
		query = query.Where("actor_id = ?", *actorID)
	}
	if action != nil {
		query = query.Where("action = ?", *action)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []AuditLog
	err := query.Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, total, err
}
