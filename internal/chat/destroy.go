package chat

import (
	"context"
	"errors"

	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/events"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

// destroyPayload mirrors the chat.destroy event schema the clients consume.
type destroyPayload struct {
	IsDestroyed bool `json:"isDestroyed"`
}

// Destroyer performs authenticated, idempotent room teardown.
type Destroyer struct {
	store kv.Store
	gate  *Gate
	bus   events.Bus
}

func NewDestroyer(store kv.Store, gate *Gate, bus events.Bus) *Destroyer {
	return &Destroyer{store: store, gate: gate, bus: bus}
}

// Destroy tears the room down. A room that is already gone (destroyed or
// naturally expired) is a successful no-op. Concurrent calls race for a
// single destroyed marker through the store's conditional update, so exactly
// one caller publishes chat.destroy before the artifacts disappear.
func (d *Destroyer) Destroy(ctx context.Context, roomID, requestingToken string) error {
	alive, err := d.store.Exists(ctx, metaKey(roomID))
	if err != nil {
		return err
	}
	if !alive {
		return nil
	}

	if err := d.gate.Authenticate(ctx, roomID, requestingToken); err != nil {
		// The room may have been torn down by a racing caller between the
		// liveness check and the membership read; that is still a no-op.
		if errors.Is(err, domain.ErrUnauthorized) {
			if alive, aliveErr := d.store.Exists(ctx, metaKey(roomID)); aliveErr == nil && !alive {
				return nil
			}
		}
		return err
	}

	claimed := false
	err = d.store.UpdateField(ctx, metaKey(roomID), destroyedField, func(current string, exists bool) (string, error) {
		// The callback can rerun after a write conflict; only the final,
		// committed run decides whether this caller holds the claim.
		claimed = false
		if exists && current == "1" {
			return "", kv.ErrUnchanged
		}
		claimed = true
		return "1", nil
	})
	if err != nil {
		if errors.Is(err, kv.ErrKeyMissing) {
			return nil
		}
		return err
	}
	if !claimed {
		return nil
	}

	// Publish first so connected clients can react before the data is gone.
	if err := d.bus.Publish(ctx, events.Channel(roomID), events.EventDestroy, destroyPayload{IsDestroyed: true}); err != nil {
		return err
	}

	_, err = d.store.Del(ctx, roomKeys(roomID)...)
	return err
}
