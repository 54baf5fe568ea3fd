package room

import (
	"context"
	"errors"
	"fmt"

	"go-chat-realtime/pkg/chat"

	"go.uber.org/zap"
)

type MembershipLister interface {
	ListRoomsForUser(ctx context.Context, userID string) ([]string, error)
}

// Resolver loads the rooms a user belongs to from storage.
type Resolver struct {
	lister MembershipLister
	logger *zap.Logger
}

func NewResolver(lister MembershipLister, logger *zap.Logger) *Resolver {
	return &Resolver{
		lister: lister,
		logger: logger.Named("room-resolver"),
	}
}

// Resolve returns the room ids userID belongs to, without duplicates. Any
// storage failure is reported as chat.ErrStorageUnavailable.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]string, error) {
	rooms, err := r.lister.ListRoomsForUser(ctx, userID)
	if err != nil {
		r.logger.Warn("failed to resolve rooms", zap.String("user_id", userID), zap.Error(err))
		if errors.Is(err, chat.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", chat.ErrStorageUnavailable, err)
	}

	seen := make(map[string]struct{}, len(rooms))
	unique := make([]string, 0, len(rooms))
	for _, roomID := range rooms {
		if _, ok := seen[roomID]; ok {
			continue
		}
		seen[roomID] = struct{}{}
		unique = append(unique, roomID)
	}
	return unique, nil
}

// IsMember re-reads membership for a single room.
func (r *Resolver) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	rooms, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range rooms {
		if id == roomID {
			return true, nil
		}
	}
	return false, nil
}
