package websocket

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub indexes live clients by connection id and by subscribed room. Room
// entries are lookup-only; each client owns its own subscription set.
//
// Lock order: Hub.mu before Client.mu.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		logger:  logger.Named("hub"),
	}
}

func (h *Hub) Attach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID()] = client
}

// Detach removes the client from the hub and every room it was subscribed
// to, returning those rooms. Detaching an unknown client returns nil.
func (h *Hub) Detach(client *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID()]; !ok {
		return nil
	}
	delete(h.clients, client.ID())

	rooms := client.clearRooms()
	for _, roomID := range rooms {
		h.removeFromRoomLocked(roomID, client.ID())
	}
	sort.Strings(rooms)
	return rooms
}

// Subscribe adds an attached client to roomID. It returns false if the
// client is not attached.
func (h *Hub) Subscribe(client *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID()]; !ok {
		return false
	}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[client.ID()] = client
	client.addRoom(roomID)
	return true
}

// Unsubscribe removes client from roomID and reports whether it was there.
func (h *Hub) Unsubscribe(client *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !client.IsInRoom(roomID) {
		return false
	}
	client.removeRoom(roomID)
	h.removeFromRoomLocked(roomID, client.ID())
	return true
}

func (h *Hub) removeFromRoomLocked(roomID, connID string) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastToRoom queues frame for every subscriber of roomID except
// excludeConnID and returns how many accepted it. Subscribers whose buffer is
// full are closed instead of waited on.
func (h *Hub) BroadcastToRoom(roomID string, frame []byte, excludeConnID string) int {
	recipients := h.GetRoomClients(roomID)

	delivered := 0
	for _, client := range recipients {
		if client.ID() == excludeConnID {
			continue
		}
		if client.Enqueue(frame) {
			delivered++
			continue
		}

		select {
		case <-client.Done():
		default:
			h.logger.Warn("send buffer full, disconnecting slow client",
				zap.String("conn_id", client.ID()),
				zap.String("user_id", client.GetUserID()),
				zap.String("room_id", roomID),
			)
			client.Close()
		}
	}
	return delivered
}

func (h *Hub) GetRoomClients(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[roomID]
	clients := make([]*Client, 0, len(members))
	for _, client := range members {
		clients = append(clients, client)
	}
	return clients
}

// Clients returns a snapshot of every attached client.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCounts returns the number of subscribers per room.
func (h *Hub) RoomCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int, len(h.rooms))
	for roomID, members := range h.rooms {
		counts[roomID] = len(members)
	}
	return counts
}

// CloseAll closes every attached client. Each one detaches itself as its
// connection unwinds.
func (h *Hub) CloseAll() int {
	clients := h.Clients()
	for _, client := range clients {
		client.Close()
	}
	return len(clients)
}
