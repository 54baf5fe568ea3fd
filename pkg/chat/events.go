package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Inbound event types (client -> server).
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
)

// Outbound event types (server -> client).
const (
	EventNewMessage  = "new-message"
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"
	EventError       = "error"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type NewMessagePayload struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Sender    Sender    `json:"sender"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Encode builds a single outbound frame.
func Encode(eventType, requestID string, data any) ([]byte, error) {
	env := Envelope{Type: eventType, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// EncodeError builds an error frame for err, correlated with requestID.
func EncodeError(requestID string, err error) []byte {
	frame, marshalErr := Encode(EventError, requestID, ErrorPayload{
		Code:   ErrorCode(err),
		Reason: err.Error(),
	})
	if marshalErr != nil {
		// ErrorPayload only holds strings
		panic(marshalErr)
	}
	return frame
}

// Decode parses an inbound frame. Any failure is reported as ErrProtocol.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: malformed frame", ErrProtocol)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing event type", ErrProtocol)
	}
	return env, nil
}

// DecodeRoomID reads the room id of a join-room or leave-room event. Data may
// be the bare id string or an object with a roomId field.
func DecodeRoomID(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", fmt.Errorf("%w: missing room id", ErrProtocol)
	}

	var roomID string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &roomID); err != nil {
			return "", fmt.Errorf("%w: malformed room id", ErrProtocol)
		}
	} else {
		var payload struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", fmt.Errorf("%w: malformed room payload", ErrProtocol)
		}
		roomID = payload.RoomID
	}

	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", fmt.Errorf("%w: missing room id", ErrProtocol)
	}
	return roomID, nil
}

func DecodeSendMessage(data json.RawMessage) (SendMessagePayload, error) {
	var payload SendMessagePayload
	if len(bytes.TrimSpace(data)) == 0 {
		return payload, fmt.Errorf("%w: missing message payload", ErrProtocol)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("%w: malformed message payload", ErrProtocol)
	}
	payload.RoomID = strings.TrimSpace(payload.RoomID)
	if payload.RoomID == "" {
		return payload, fmt.Errorf("%w: missing room id", ErrProtocol)
	}
	if strings.TrimSpace(payload.Content) == "" {
		return payload, fmt.Errorf("%w: message content cannot be empty", ErrProtocol)
	}
	return payload, nil
}
