package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

// Registry owns room metadata: existence, creation time, lifetime.
type Registry struct {
	store    kv.Store
	lifetime time.Duration
	now      func() time.Time
}

func NewRegistry(store kv.Store, lifetime time.Duration) *Registry {
	if lifetime <= 0 || lifetime > domain.MaxRoomLifetime {
		lifetime = domain.MaxRoomLifetime
	}
	return &Registry{
		store:    store,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Create allocates a fresh room with empty membership and arms the shared
// expiry at the lifetime ceiling.
func (r *Registry) Create(ctx context.Context) (string, error) {
	roomID := uuid.NewString()

	err := r.store.HSetEx(ctx, metaKey(roomID), map[string]string{
		connectedField: "[]",
		createdAtField: strconv.FormatInt(r.now().UnixMilli(), 10),
	}, r.lifetime)
	if err != nil {
		return "", err
	}
	return roomID, nil
}

func (r *Registry) Exists(ctx context.Context, roomID string) (bool, error) {
	return r.store.Exists(ctx, metaKey(roomID))
}

// RemainingLifetime reports the time until the shared expiry.
func (r *Registry) RemainingLifetime(ctx context.Context, roomID string) (time.Duration, error) {
	ttl, ok, err := r.store.TTL(ctx, metaKey(roomID))
	if err != nil {
		return 0, err
	}
	if !ok || ttl <= 0 {
		return 0, domain.ErrRoomNotFound
	}
	return ttl, nil
}

// Get loads and decodes room metadata.
func (r *Registry) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	meta, err := r.store.HGetAll(ctx, metaKey(roomID))
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, domain.ErrRoomNotFound
	}
	return decodeRoom(roomID, meta)
}

// Membership returns the admitted tokens in insertion order.
func (r *Registry) Membership(ctx context.Context, roomID string) ([]string, error) {
	room, err := r.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room.Connected, nil
}

// Lifetime is the fixed maximum room lifetime this registry creates rooms with.
func (r *Registry) Lifetime() time.Duration {
	return r.lifetime
}

func decodeRoom(roomID string, meta map[string]string) (*domain.Room, error) {
	room := &domain.Room{ID: roomID, Connected: []string{}}

	if raw := meta[connectedField]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &room.Connected); err != nil {
			return nil, fmt.Errorf("corrupt membership for room %s: %w", roomID, err)
		}
	}
	if raw := meta[createdAtField]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt createdAt for room %s: %w", roomID, err)
		}
		room.CreatedAt = time.UnixMilli(ms)
	}
	return room, nil
}
