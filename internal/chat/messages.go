package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/events"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

// Messages is the append-only per-room message log with authorship-aware
// replay. Callers must have passed Gate.Authenticate first; Messages only
// re-checks that the room is still alive.
type Messages struct {
	store  kv.Store
	expiry *Synchronizer
	bus    events.Bus
	now    func() time.Time
}

func NewMessages(store kv.Store, expiry *Synchronizer, bus events.Bus) *Messages {
	return &Messages{
		store:  store,
		expiry: expiry,
		bus:    bus,
		now:    time.Now,
	}
}

// Append stores the message, re-syncs the shared expiry, and relays the
// redacted message to live subscribers. Message order within a room is the
// order appends reach the store.
func (m *Messages) Append(ctx context.Context, roomID, sender, text, ownerToken string) (domain.Message, error) {
	alive, err := m.store.Exists(ctx, metaKey(roomID))
	if err != nil {
		return domain.Message{}, err
	}
	if !alive {
		return domain.Message{}, domain.ErrRoomNotFound
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: m.now().UnixMilli(),
		RoomID:    roomID,
		Token:     ownerToken,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}
	if err := m.store.RPush(ctx, messagesKey(roomID), string(data)); err != nil {
		return domain.Message{}, err
	}
	// Backstop in case the room expires out from under the append: a push
	// onto a vanished key recreates it, and the log must never outlive the
	// lifetime ceiling even when the touch below cannot run.
	if err := m.store.ExpireNX(ctx, messagesKey(roomID), m.expiry.registry.Lifetime()); err != nil {
		return domain.Message{}, err
	}

	if err := m.expiry.Touch(ctx, roomID); err != nil {
		return domain.Message{}, err
	}

	// The channel is shared by both participants, so the owner token is
	// stripped before publish; subscribers recognize their own messages
	// through the authoritative log instead.
	if err := m.bus.Publish(ctx, events.Channel(roomID), events.EventMessage, msg.Redacted("")); err != nil {
		return domain.Message{}, err
	}

	// The history buffer is created lazily by the first publish; re-sync so
	// it shares the room expiry from the start.
	if err := m.expiry.Touch(ctx, roomID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Message{}, err
	}

	return msg, nil
}

// List replays the log in append order. The owner token survives only on the
// requester's own messages, so a participant can recognize what they wrote
// but never observe the other side's credential.
func (m *Messages) List(ctx context.Context, roomID, requestingToken string) ([]domain.Message, error) {
	alive, err := m.store.Exists(ctx, metaKey(roomID))
	if err != nil {
		return nil, err
	}
	if !alive {
		return nil, domain.ErrRoomNotFound
	}

	raw, err := m.store.LRange(ctx, messagesKey(roomID), 0, -1)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, err
		}
		out = append(out, msg.Redacted(requestingToken))
	}
	return out, nil
}
