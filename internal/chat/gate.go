package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

// Gate is the admission and authentication protocol. Admission mutates the
// membership set through the store's conditional update, so it stays
// linearizable per room without any process-wide lock.
type Gate struct {
	store    kv.Store
	registry *Registry
}

func NewGate(store kv.Store, registry *Registry) *Gate {
	return &Gate{store: store, registry: registry}
}

// Admit grants existingToken re-entry if it already holds a slot, otherwise
// mints a new token and appends it to the membership set. The append commits
// only if the set stays within capacity; when two new tokens race for the
// last slot, whichever conditional update the store accepts first wins and
// the loser gets domain.ErrRoomFull.
func (g *Gate) Admit(ctx context.Context, roomID, existingToken string) (string, error) {
	minted := uuid.NewString()
	admitted := minted

	err := g.store.UpdateField(ctx, metaKey(roomID), connectedField, func(current string, exists bool) (string, error) {
		var tokens []string
		if current != "" {
			if err := json.Unmarshal([]byte(current), &tokens); err != nil {
				return "", err
			}
		}

		if existingToken != "" {
			for _, t := range tokens {
				if t == existingToken {
					admitted = existingToken
					return "", kv.ErrUnchanged
				}
			}
		}

		if len(tokens) >= domain.MaxMembers {
			return "", domain.ErrRoomFull
		}

		next, err := json.Marshal(append(tokens, minted))
		if err != nil {
			return "", err
		}
		return string(next), nil
	})
	if err != nil {
		if errors.Is(err, kv.ErrKeyMissing) {
			return "", domain.ErrRoomNotFound
		}
		return "", err
	}
	return admitted, nil
}

// Authenticate gates every room-scoped operation. A missing room, a missing
// token and a foreign token are indistinguishable to the caller.
func (g *Gate) Authenticate(ctx context.Context, roomID, token string) error {
	if roomID == "" || token == "" {
		return domain.ErrUnauthorized
	}

	room, err := g.registry.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}
	if !room.IsMember(token) {
		return domain.ErrUnauthorized
	}
	return nil
}
