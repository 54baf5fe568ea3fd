package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-chat-realtime/pkg/chat"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DBPath = "gochat.db"
)

// Backend is the durable storage used by the realtime core.
type Backend interface {
	CreateMessage(ctx context.Context, roomID, senderID, content string) (*chat.Message, error)
	UpdateRoomSummary(ctx context.Context, roomID, lastContent string, lastTimestamp time.Time) error
	ListRoomsForUser(ctx context.Context, userID string) ([]string, error)
}

// Open connects to the SQLite database at path and migrates the schema.
// A single pooled connection is kept so ":memory:" databases are shared by
// every goroutine.
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		path = DBPath
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&chat.User{},
		&chat.Room{},
		&chat.RoomMember{},
		&chat.Message{},
		&chat.AuditLog{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Store implements Backend on top of gorm.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewStore(db *gorm.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) CreateMessage(ctx context.Context, roomID, senderID, content string) (*chat.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	message := chat.Message{
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		Status:    chat.MessageStatusSent,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return nil, fmt.Errorf("%w: creating message: %v", chat.ErrStorageUnavailable, err)
	}

	return &message, nil
}

func (s *Store) UpdateRoomSummary(ctx context.Context, roomID, lastContent string, lastTimestamp time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).
		Model(&chat.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{
			"last_message":      lastContent,
			"last_message_time": lastTimestamp,
		})
	if result.Error != nil {
		return fmt.Errorf("%w: updating room summary: %v", chat.ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: room %s: %w", chat.ErrStorageUnavailable, roomID, gorm.ErrRecordNotFound)
	}

	return nil
}

func (s *Store) ListRoomsForUser(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var roomIDs []string
	err := s.db.WithContext(ctx).
		Model(&chat.RoomMember{}).
		Where("user_id = ?", userID).
		Order("room_id").
		Pluck("room_id", &roomIDs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: listing rooms: %v", chat.ErrStorageUnavailable, err)
	}

	return roomIDs, nil
}

func (s *Store) CreateUser(name string) (*chat.User, error) {
	if name == "" {
		return nil, errors.New("user name cannot be empty")
	}

	user := chat.User{Name: name}
	return &user, s.db.Create(&user).Error
}

// CreateRoom creates a room and adds memberIDs to it in one transaction.
func (s *Store) CreateRoom(name string, isGroup bool, memberIDs ...string) (*chat.Room, error) {
	room := chat.Room{Name: name, IsGroup: isGroup}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		for _, userID := range memberIDs {
			if err := tx.Create(&chat.RoomMember{RoomID: room.ID, UserID: userID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &room, nil
}

func (s *Store) AddMember(roomID, userID string) error {
	var room chat.Room
	if err := s.db.Where("id = ?", roomID).First(&room).Error; err != nil {
		return err
	}
	return s.db.Create(&chat.RoomMember{RoomID: roomID, UserID: userID}).Error
}

func (s *Store) GetRoom(roomID string) (*chat.Room, error) {
	var room chat.Room
	if err := s.db.Where("id = ?", roomID).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// RoomMessages returns the messages of a room in persistence order.
func (s *Store) RoomMessages(roomID string) ([]chat.Message, error) {
	var messages []chat.Message
	err := s.db.Where("room_id = ?", roomID).Order("created_at, rowid").Find(&messages).Error
	return messages, err
}
