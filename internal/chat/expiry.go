package chat

import (
	"context"
	"time"

	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

// Synchronizer keeps every room-scoped key expiring at the same instant.
// It is the only place that issues multi-key expiry updates.
type Synchronizer struct {
	store    kv.Store
	registry *Registry
	now      func() time.Time
}

func NewSynchronizer(store kv.Store, registry *Registry) *Synchronizer {
	return &Synchronizer{
		store:    store,
		registry: registry,
		now:      time.Now,
	}
}

// Touch recomputes the remaining lifetime from the creation-time ceiling and
// re-applies it to metadata, message log and history buffer. The ceiling is
// fixed at creation, so Touch can only tighten or preserve an expiry, never
// extend it.
func (s *Synchronizer) Touch(ctx context.Context, roomID string) error {
	room, err := s.registry.Get(ctx, roomID)
	if err != nil {
		return err
	}

	remaining := room.CreatedAt.Add(s.registry.Lifetime()).Sub(s.now())
	if remaining <= 0 {
		return domain.ErrRoomNotFound
	}

	for _, key := range roomKeys(roomID) {
		if err := s.store.Expire(ctx, key, remaining); err != nil {
			return err
		}
	}
	return nil
}
