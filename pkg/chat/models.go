package chat

import (
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

const MessageStatusSent = "sent"

type User struct {
	ID        string `gorm:"primaryKey;size:21"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

// Room is a chat conversation. LastMessage and LastMessageTime hold the
// summary shown in chat lists and are overwritten by every persisted message.
type Room struct {
	ID              string `gorm:"primaryKey;size:21"`
	Name            string
	IsGroup         bool
	LastMessage     *string
	LastMessageTime *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RoomMember struct {
	RoomID   string    `gorm:"primaryKey;size:21"`
	UserID   string    `gorm:"primaryKey;size:21;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

type Message struct {
	ID        string `gorm:"primaryKey;size:21"`
	RoomID    string `gorm:"not null;index"`
	SenderID  string `gorm:"not null"`
	Content   string `gorm:"not null"`
	Status    string `gorm:"not null;default:sent"`
	CreatedAt time.Time `gorm:"index"`
}

type AuditLog struct {
	ID          uint   `gorm:"primaryKey"`
	Action      string `gorm:"not null;index"`
	ActorID     *string
	RoomID      *string
	RemoteAddr  string
	Description string
	Metadata    string
	CreatedAt   time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID, err = nanoid.New(8)
	}
	return
}

func (r *Room) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID, err = nanoid.New(6)
	}
	return
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID, err = nanoid.New()
	}
	return
}
