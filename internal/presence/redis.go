package presence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OnlineSetKey holds the ids of every user with at least one live connection.
const OnlineSetKey = "presence:online"

// SetCommands is the subset of redis.Cmdable used by the mirror.
type SetCommands interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisMirror copies presence transitions into a Redis set so other
// processes can answer "is this user online". Pending updates are coalesced
// per user; the worker writes each user's latest state.
type RedisMirror struct {
	rdb     SetCommands
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]bool
	order   []string
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewRedisMirror clears the online set left over from a previous run and
// starts the worker.
func NewRedisMirror(ctx context.Context, rdb SetCommands, logger *zap.Logger) (*RedisMirror, error) {
	if err := rdb.Del(ctx, OnlineSetKey).Err(); err != nil {
		return nil, err
	}

	m := &RedisMirror{
		rdb:     rdb,
		timeout: 2 * time.Second,
		logger:  logger.Named("presence-mirror"),
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.run()
	return m, nil
}

// Connect opens a client from a redis:// URL and verifies it with PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (m *RedisMirror) SetOnline(userID string) {
	m.enqueue(userID, true)
}

func (m *RedisMirror) SetOffline(userID string) {
	m.enqueue(userID, false)
}

func (m *RedisMirror) enqueue(userID string, online bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, queued := m.pending[userID]; !queued {
		m.order = append(m.order, userID)
	}
	m.pending[userID] = online
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *RedisMirror) run() {
	defer close(m.done)
	for {
		select {
		case <-m.wake:
			m.flush()
		case <-m.stop:
			m.flush()
			return
		}
	}
}

// flush writes every pending user's latest state.
func (m *RedisMirror) flush() {
	m.mu.Lock()
	order, pending := m.order, m.pending
	m.order, m.pending = nil, make(map[string]bool)
	m.mu.Unlock()

	for _, userID := range order {
		m.apply(userID, pending[userID])
	}
}

func (m *RedisMirror) apply(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var err error
	if online {
		err = m.rdb.SAdd(ctx, OnlineSetKey, userID).Err()
	} else {
		err = m.rdb.SRem(ctx, OnlineSetKey, userID).Err()
	}
	if err != nil {
		m.logger.Warn("failed to mirror presence",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
}

// Close writes pending updates and stops the worker. Later updates are
// ignored.
func (m *RedisMirror) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stop)
	}
	m.mu.Unlock()
	<-m.done
}
