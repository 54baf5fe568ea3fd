package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go-chat-realtime/internal/auth"
	"go-chat-realtime/internal/presence"
	"go-chat-realtime/internal/room"
	"go-chat-realtime/internal/session"
	"go-chat-realtime/internal/storage"
	"go-chat-realtime/pkg/chat"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, userID string) ([]string, error) {
	return nil, chat.ErrStorageUnavailable
}

func (failingResolver) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	return false, chat.ErrStorageUnavailable
}

// flakyResolver fails the next Resolve calls queued for a user with
// failNext, then defers to the wrapped resolver.
type flakyResolver struct {
	*room.Resolver

	mu       sync.Mutex
	failures map[string]int
}

func newFlakyResolver(store *storage.Store) *flakyResolver {
	return &flakyResolver{
		Resolver: room.NewResolver(store, zap.NewNop()),
		failures: make(map[string]int),
	}
}

func (r *flakyResolver) failNext(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[userID]++
}

func (r *flakyResolver) Resolve(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	if r.failures[userID] > 0 {
		r.failures[userID]--
		r.mu.Unlock()
		return nil, chat.ErrStorageUnavailable
	}
	r.mu.Unlock()
	return r.Resolver.Resolve(ctx, userID)
}

type resolverWithMembership interface {
	RoomResolver
	MembershipChecker
}

type gatewayFixture struct {
	server   *httptest.Server
	gateway  *Gateway
	registry *session.Registry
	hub      *Hub
	store    *storage.Store
}

func startGateway(t *testing.T, resolver resolverWithMembership, store *storage.Store) *gatewayFixture {
	t.Helper()
	log := zap.NewNop()

	hub := NewHub(log)
	registry := session.NewRegistry()
	notifier := presence.NewNotifier(registry, hub, nil, log)
	var messageStore MessageStore = newFakeMessageStore()
	if store != nil {
		messageStore = store
	}
	dispatcher := NewDispatcher(messageStore, hub, log)
	handler := NewMessageHandler(hub, dispatcher, resolver, nil, log)
	gw := NewGateway(hub, notifier, resolver, handler, DefaultClientConfig(), log)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gw.Serve(conn, auth.Identity{UserID: r.URL.Query().Get("user"), DisplayName: r.URL.Query().Get("name")})
	}))
	t.Cleanup(srv.Close)

	return &gatewayFixture{server: srv, gateway: gw, registry: registry, hub: hub, store: store}
}

func (f *gatewayFixture) dial(t *testing.T, userID, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?" + url.Values{"user": {userID}, "name": {name}}.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *gatewayFixture) waitConnections(t *testing.T, userID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.registry.ConnectionCount(userID) == n
	}, 2*time.Second, 5*time.Millisecond, "user %s should have %d connections", userID, n)
}

func readEvent(t *testing.T, conn *websocket.Conn) chat.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env chat.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, data any) {
	t.Helper()
	frame, err := chat.Encode(eventType, "", data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func presenceUser(t *testing.T, env chat.Envelope) string {
	t.Helper()
	var payload chat.PresencePayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload.UserID
}

func setupRoomStore(t *testing.T) (*storage.Store, *chat.Room) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	store := storage.NewStore(db, time.Second)
	r1, err := store.CreateRoom("R1", true, "u1", "u2")
	require.NoError(t, err)
	return store, r1
}

func TestGateway_TwoUsersChatInSharedRoom(t *testing.T) {
	store, r1 := setupRoomStore(t)
	f := startGateway(t, room.NewResolver(store, zap.NewNop()), store)

	c1 := f.dial(t, "u1", "Ann")
	f.waitConnections(t, "u1", 1)

	c2 := f.dial(t, "u2", "Bo")
	online := readEvent(t, c1)
	assert.Equal(t, chat.EventUserOnline, online.Type)
	assert.Equal(t, "u2", presenceUser(t, online))

	sendEvent(t, c1, chat.EventSendMessage, chat.SendMessagePayload{RoomID: r1.ID, Content: "hi"})

	var delivered []chat.NewMessagePayload
	for _, conn := range []*websocket.Conn{c1, c2} {
		env := readEvent(t, conn)
		require.Equal(t, chat.EventNewMessage, env.Type)
		var msg chat.NewMessagePayload
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		delivered = append(delivered, msg)
	}

	messages, err := store.RoomMessages(r1.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	for _, msg := range delivered {
		assert.Equal(t, messages[0].ID, msg.ID)
		assert.Equal(t, r1.ID, msg.RoomID)
		assert.Equal(t, "u1", msg.SenderID)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, chat.Sender{ID: "u1", Name: "Ann"}, msg.Sender)
	}

	summary, err := store.GetRoom(r1.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.LastMessage)
	assert.Equal(t, "hi", *summary.LastMessage)

	require.NoError(t, c2.Close())
	offline := readEvent(t, c1)
	assert.Equal(t, chat.EventUserOffline, offline.Type)
	assert.Equal(t, "u2", presenceUser(t, offline))
	f.waitConnections(t, "u2", 0)
	assert.False(t, f.registry.IsOnline("u2"))
}

func TestGateway_MultipleConnectionsPerUser(t *testing.T) {
	store, _ := setupRoomStore(t)
	f := startGateway(t, room.NewResolver(store, zap.NewNop()), store)

	watcher := f.dial(t, "u1", "Ann")
	f.waitConnections(t, "u1", 1)

	tab1 := f.dial(t, "u2", "Bo")
	assert.Equal(t, chat.EventUserOnline, readEvent(t, watcher).Type)

	tab2 := f.dial(t, "u2", "Bo")
	f.waitConnections(t, "u2", 2)

	require.NoError(t, tab1.Close())
	f.waitConnections(t, "u2", 1)
	assert.True(t, f.registry.IsOnline("u2"))

	// nothing was announced for the extra tab, so the next frame is the offline
	require.NoError(t, tab2.Close())
	offline := readEvent(t, watcher)
	assert.Equal(t, chat.EventUserOffline, offline.Type)
	assert.Equal(t, "u2", presenceUser(t, offline))
}

func TestGateway_SendToUnjoinedRoom(t *testing.T) {
	store, _ := setupRoomStore(t)
	other, err := store.CreateRoom("other", true, "u3")
	require.NoError(t, err)
	f := startGateway(t, room.NewResolver(store, zap.NewNop()), store)

	c1 := f.dial(t, "u1", "Ann")
	f.waitConnections(t, "u1", 1)

	sendEvent(t, c1, chat.EventSendMessage, chat.SendMessagePayload{RoomID: other.ID, Content: "hi"})

	env := readEvent(t, c1)
	require.Equal(t, chat.EventError, env.Type)
	var payload chat.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, chat.CodeNotAMember, payload.Code)

	messages, err := store.RoomMessages(other.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// the connection is still usable
	sendEvent(t, c1, "bogus", nil)
	assert.Equal(t, chat.EventError, readEvent(t, c1).Type)
}

func TestGateway_DegradedWhenRoomsUnavailable(t *testing.T) {
	f := startGateway(t, failingResolver{}, nil)

	c1 := f.dial(t, "u1", "Ann")

	env := readEvent(t, c1)
	require.Equal(t, chat.EventError, env.Type)
	var payload chat.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, chat.CodeStorageUnavailable, payload.Code)

	f.waitConnections(t, "u1", 1)
	assert.Equal(t, 0, len(f.hub.RoomCounts()))
}

func TestGateway_Shutdown(t *testing.T) {
	store, _ := setupRoomStore(t)
	f := startGateway(t, room.NewResolver(store, zap.NewNop()), store)

	c1 := f.dial(t, "u1", "Ann")
	f.waitConnections(t, "u1", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.gateway.Shutdown(ctx))

	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 0, f.hub.GetClientCount())

	require.NoError(t, c1.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c1.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// new connections are turned away
	late := f.dial(t, "u2", "Bo")
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.False(t, f.registry.IsOnline("u2"))
}

func readErrorCode(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	env := readEvent(t, conn)
	require.Equal(t, chat.EventError, env.Type)
	var payload chat.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload.Code
}

// expectChatMessage sends content from watcher to roomID and checks the next
// frame watcher sees is that message, so nothing else was queued before it.
func expectChatMessage(t *testing.T, watcher *websocket.Conn, roomID, content string) {
	t.Helper()
	sendEvent(t, watcher, chat.EventSendMessage, chat.SendMessagePayload{RoomID: roomID, Content: content})
	env := readEvent(t, watcher)
	require.Equal(t, chat.EventNewMessage, env.Type, "unexpected %s frame", env.Type)
	var msg chat.NewMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, content, msg.Content)
}

func TestGateway_OfflineMatchesOnlineWithDegradedTab(t *testing.T) {
	tests := []struct {
		name          string
		degradedFirst bool
	}{
		{name: "degraded tab opens first", degradedFirst: true},
		{name: "degraded tab opens second", degradedFirst: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, r1 := setupRoomStore(t)
			resolver := newFlakyResolver(store)
			f := startGateway(t, resolver, store)

			watcher := f.dial(t, "u2", "Bo")
			f.waitConnections(t, "u2", 1)

			var healthy, degraded *websocket.Conn
			if tt.degradedFirst {
				resolver.failNext("u1")
				degraded = f.dial(t, "u1", "Ann")
				assert.Equal(t, chat.CodeStorageUnavailable, readErrorCode(t, degraded))
				f.waitConnections(t, "u1", 1)

				healthy = f.dial(t, "u1", "Ann")
			} else {
				healthy = f.dial(t, "u1", "Ann")
				f.waitConnections(t, "u1", 1)

				resolver.failNext("u1")
				degraded = f.dial(t, "u1", "Ann")
				assert.Equal(t, chat.CodeStorageUnavailable, readErrorCode(t, degraded))
			}

			online := readEvent(t, watcher)
			assert.Equal(t, chat.EventUserOnline, online.Type)
			assert.Equal(t, "u1", presenceUser(t, online))
			f.waitConnections(t, "u1", 2)

			// the tab that opened first closes first
			first, last := degraded, healthy
			if !tt.degradedFirst {
				first, last = healthy, degraded
			}

			require.NoError(t, first.Close())
			f.waitConnections(t, "u1", 1)
			expectChatMessage(t, watcher, r1.ID, "still here?")

			require.NoError(t, last.Close())
			offline := readEvent(t, watcher)
			assert.Equal(t, chat.EventUserOffline, offline.Type)
			assert.Equal(t, "u1", presenceUser(t, offline))
			assert.False(t, f.registry.IsOnline("u1"))
		})
	}
}
