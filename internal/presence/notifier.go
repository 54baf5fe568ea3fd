package presence

import (
	"sort"
	"sync"

	"go-chat-realtime/internal/session"
	"go-chat-realtime/internal/utils"
	"go-chat-realtime/pkg/chat"

	"go.uber.org/zap"
)

// Broadcaster delivers an encoded frame to every connection subscribed to a
// room except excludeConnID. It must not block.
type Broadcaster interface {
	BroadcastToRoom(roomID string, frame []byte, excludeConnID string) int
}

// Mirror receives online/offline transitions in order. Implementations must
// not block the caller.
type Mirror interface {
	SetOnline(userID string)
	SetOffline(userID string)
}

type noopMirror struct{}

func (noopMirror) SetOnline(string)  {}
func (noopMirror) SetOffline(string) {}

// Notifier turns session registry transitions into user-online and
// user-offline events. It remembers which rooms were told a user is online,
// so the matching user-offline reaches exactly those rooms.
type Notifier struct {
	registry    *session.Registry
	broadcaster Broadcaster
	mirror      Mirror
	users       *utils.KeyedMutex
	logger      *zap.Logger

	mu        sync.Mutex
	announced map[string]map[string]struct{}
}

func NewNotifier(registry *session.Registry, broadcaster Broadcaster, mirror Mirror, logger *zap.Logger) *Notifier {
	if mirror == nil {
		mirror = noopMirror{}
	}
	return &Notifier{
		registry:    registry,
		broadcaster: broadcaster,
		mirror:      mirror,
		users:       utils.NewKeyedMutex(256),
		logger:      logger.Named("presence"),
		announced:   make(map[string]map[string]struct{}),
	}
}

// Connected registers the connection and announces user-online to each of
// rooms that has not seen the user come online yet. It reports whether this
// is the user's first live connection. The connection itself is not
// notified.
func (n *Notifier) Connected(userID, connID string, rooms []string) bool {
	unlock := n.users.Lock(userID)
	defer unlock()

	first := n.registry.Register(userID, connID)
	if first {
		n.mirror.SetOnline(userID)
	}

	n.announce(chat.EventUserOnline, userID, connID, n.markAnnounced(userID, rooms))
	return first
}

// Disconnected deregisters the connection and, when it was the user's last,
// announces user-offline to every room that saw the user online. Repeated
// calls for the same connection are no-ops.
func (n *Notifier) Disconnected(userID, connID string) bool {
	unlock := n.users.Lock(userID)
	defer unlock()

	if !n.registry.Deregister(userID, connID) {
		return false
	}

	n.mirror.SetOffline(userID)
	n.announce(chat.EventUserOffline, userID, connID, n.takeAnnounced(userID))
	return true
}

// markAnnounced records rooms for userID and returns the ones not recorded
// before, in their original order.
func (n *Notifier) markAnnounced(userID string, rooms []string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	seen, ok := n.announced[userID]
	if !ok {
		seen = make(map[string]struct{}, len(rooms))
		n.announced[userID] = seen
	}

	var fresh []string
	for _, roomID := range rooms {
		if _, done := seen[roomID]; done {
			continue
		}
		seen[roomID] = struct{}{}
		fresh = append(fresh, roomID)
	}
	return fresh
}

// takeAnnounced forgets and returns, sorted, the rooms told userID is online.
func (n *Notifier) takeAnnounced(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	seen := n.announced[userID]
	delete(n.announced, userID)

	rooms := make([]string, 0, len(seen))
	for roomID := range seen {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func (n *Notifier) announce(eventType, userID, connID string, rooms []string) {
	if len(rooms) == 0 {
		return
	}

	frame, err := chat.Encode(eventType, "", chat.PresencePayload{UserID: userID})
	if err != nil {
		n.logger.Error("failed to encode presence event", zap.String("user_id", userID), zap.Error(err))
		return
	}

	delivered := 0
	for _, roomID := range rooms {
		delivered += n.broadcaster.BroadcastToRoom(roomID, frame, connID)
	}

	n.logger.Debug("presence announced",
		zap.String("event", eventType),
		zap.String("user_id", userID),
		zap.Int("rooms", len(rooms)),
		zap.Int("delivered", delivered),
	)
}

func (n *Notifier) IsOnline(userID string) bool {
	return n.registry.IsOnline(userID)
}

func (n *Notifier) OnlineUserIDs() []string {
	return n.registry.OnlineUserIDs()
}

func (n *Notifier) ConnectionCount(userID string) int {
	return n.registry.ConnectionCount(userID)
}
