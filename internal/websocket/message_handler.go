package websocket

import (
	"context"
	"errors"
	"fmt"

	"go-chat-realtime/pkg/chat"

	"go.uber.org/zap"
)

// MembershipChecker re-reads room membership from storage.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
}

// Auditor records rejected room access.
type Auditor interface {
	LogNotAMember(actorID, roomID, event string) error
}

type MessageHandler struct {
	hub        *Hub
	dispatcher *Dispatcher
	membership MembershipChecker
	audit      Auditor
	logger     *zap.Logger
}

func NewMessageHandler(hub *Hub, dispatcher *Dispatcher, membership MembershipChecker, audit Auditor, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		hub:        hub,
		dispatcher: dispatcher,
		membership: membership,
		audit:      audit,
		logger:     logger.Named("message-handler"),
	}
}

// HandleMessage decodes one inbound frame and acts on it. Failures are
// reported to the originating client only; the connection stays open.
func (mh *MessageHandler) HandleMessage(ctx context.Context, client *Client, raw []byte) {
	var requestID string
	defer func() {
		if r := recover(); r != nil {
			mh.logger.Error("panic while handling event",
				zap.String("conn_id", client.ID()),
				zap.Any("panic", r),
			)
			client.SendError(requestID, errors.New("internal error"))
		}
	}()

	env, err := chat.Decode(raw)
	if err != nil {
		client.SendError("", err)
		return
	}
	requestID = env.RequestID

	switch env.Type {
	case chat.EventJoinRoom:
		err = mh.handleJoinRoom(ctx, client, env)
	case chat.EventLeaveRoom:
		err = mh.handleLeaveRoom(client, env)
	case chat.EventSendMessage:
		err = mh.handleSendMessage(ctx, client, env)
	default:
		err = fmt.Errorf("%w: unknown event type %q", chat.ErrProtocol, env.Type)
	}

	if err != nil {
		mh.sendErrorToClient(client, env, err)
	}
}

func (mh *MessageHandler) handleJoinRoom(ctx context.Context, client *Client, env chat.Envelope) error {
	roomID, err := chat.DecodeRoomID(env.Data)
	if err != nil {
		return err
	}
	if client.IsInRoom(roomID) {
		return nil
	}

	ok, err := mh.membership.IsMember(ctx, client.GetUserID(), roomID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrNotAMember, roomID)
	}

	mh.hub.Subscribe(client, roomID)
	mh.logger.Debug("joined room",
		zap.String("conn_id", client.ID()),
		zap.String("room_id", roomID),
	)
	return nil
}

func (mh *MessageHandler) handleLeaveRoom(client *Client, env chat.Envelope) error {
	roomID, err := chat.DecodeRoomID(env.Data)
	if err != nil {
		return err
	}

	if mh.hub.Unsubscribe(client, roomID) {
		mh.logger.Debug("left room",
			zap.String("conn_id", client.ID()),
			zap.String("room_id", roomID),
		)
	}
	return nil
}

func (mh *MessageHandler) handleSendMessage(ctx context.Context, client *Client, env chat.Envelope) error {
	payload, err := chat.DecodeSendMessage(env.Data)
	if err != nil {
		return err
	}

	_, err = mh.dispatcher.Dispatch(ctx, client, payload.RoomID, payload.Content)
	return err
}

func (mh *MessageHandler) sendErrorToClient(client *Client, env chat.Envelope, err error) {
	if errors.Is(err, chat.ErrNotAMember) && mh.audit != nil {
		if roomID := roomFromEnvelope(env); roomID != "" {
			if auditErr := mh.audit.LogNotAMember(client.GetUserID(), roomID, env.Type); auditErr != nil {
				mh.logger.Warn("failed to write audit log", zap.Error(auditErr))
			}
		}
	}

	mh.logger.Debug("rejected event",
		zap.String("conn_id", client.ID()),
		zap.String("user_id", client.GetUserID()),
		zap.String("event", env.Type),
		zap.String("code", chat.ErrorCode(err)),
		zap.Error(err),
	)
	client.SendError(env.RequestID, err)
}

func roomFromEnvelope(env chat.Envelope) string {
	if env.Type == chat.EventSendMessage {
		payload, err := chat.DecodeSendMessage(env.Data)
		if err != nil {
			return ""
		}
		return payload.RoomID
	}
	roomID, _ := chat.DecodeRoomID(env.Data)
	return roomID
}
