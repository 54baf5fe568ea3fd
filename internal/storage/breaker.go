package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-chat-realtime/pkg/chat"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Breaker fails storage calls fast while the backend is unhealthy. It never
// retries; an open circuit surfaces as chat.ErrStorageUnavailable.
type Breaker struct {
	backend Backend
	cb      *gobreaker.CircuitBreaker
}

func NewBreaker(backend Backend, settings BreakerSettings, logger *zap.Logger) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	log := logger.Named("storage-breaker")

	cbSettings := gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, gorm.ErrRecordNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		backend: backend,
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
	}
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", chat.ErrStorageUnavailable, err)
	}
	return result, err
}

func (b *Breaker) CreateMessage(ctx context.Context, roomID, senderID, content string) (*chat.Message, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.backend.CreateMessage(ctx, roomID, senderID, content)
	})
	if err != nil {
		return nil, err
	}
	return result.(*chat.Message), nil
}

func (b *Breaker) UpdateRoomSummary(ctx context.Context, roomID, lastContent string, lastTimestamp time.Time) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.backend.UpdateRoomSummary(ctx, roomID, lastContent, lastTimestamp)
	})
	return err
}

func (b *Breaker) ListRoomsForUser(ctx context.Context, userID string) ([]string, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.backend.ListRoomsForUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}
