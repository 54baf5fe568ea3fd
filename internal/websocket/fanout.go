package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-chat-realtime/internal/utils"
	"go-chat-realtime/pkg/chat"

	"go.uber.org/zap"
)

// MessageStore persists chat messages and the room summary.
type MessageStore interface {
	CreateMessage(ctx context.Context, roomID, senderID, content string) (*chat.Message, error)
	UpdateRoomSummary(ctx context.Context, roomID, lastContent string, lastTimestamp time.Time) error
}

// Dispatcher persists a message and then fans it out to every subscriber of
// its room. Within a room, delivery order matches persistence order.
type Dispatcher struct {
	store  MessageStore
	hub    *Hub
	rooms  *utils.KeyedMutex
	logger *zap.Logger
}

func NewDispatcher(store MessageStore, hub *Hub, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		hub:    hub,
		rooms:  utils.NewKeyedMutex(256),
		logger: logger.Named("dispatcher"),
	}
}

// Dispatch stores content from sender in roomID and broadcasts the resulting
// new-message event, the sender's own connections included. Nothing is
// broadcast when it returns an error, and nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, sender *Client, roomID, content string) (*chat.NewMessagePayload, error) {
	if !sender.IsInRoom(roomID) {
		return nil, fmt.Errorf("%w: %s", chat.ErrNotAMember, roomID)
	}

	unlock := d.rooms.Lock(roomID)
	defer unlock()

	message, err := d.store.CreateMessage(ctx, roomID, sender.GetUserID(), content)
	if err != nil {
		d.logger.Warn("failed to persist message",
			zap.String("room_id", roomID),
			zap.String("user_id", sender.GetUserID()),
			zap.Error(err),
		)
		return nil, storageError(err)
	}

	if err := d.store.UpdateRoomSummary(ctx, roomID, message.Content, message.CreatedAt); err != nil {
		d.logger.Warn("failed to update room summary",
			zap.String("room_id", roomID),
			zap.String("message_id", message.ID),
			zap.Error(err),
		)
		return nil, storageError(err)
	}

	payload := &chat.NewMessagePayload{
		ID:        message.ID,
		RoomID:    message.RoomID,
		SenderID:  message.SenderID,
		Content:   message.Content,
		Timestamp: message.CreatedAt,
		Status:    message.Status,
		Sender: chat.Sender{
			ID:   sender.GetUserID(),
			Name: sender.GetUsername(),
		},
	}

	frame, err := chat.Encode(chat.EventNewMessage, "", payload)
	if err != nil {
		return nil, err
	}

	delivered := d.hub.BroadcastToRoom(roomID, frame, "")
	d.logger.Debug("message delivered",
		zap.String("room_id", roomID),
		zap.String("message_id", message.ID),
		zap.Int("recipients", delivered),
	)
	return payload, nil
}

func storageError(err error) error {
	if errors.Is(err, chat.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", chat.ErrStorageUnavailable, err)
}
