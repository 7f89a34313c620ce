package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

// Event kinds the chat core publishes.
const (
	EventMessage = "chat.message"
	EventDestroy = "chat.destroy"
)

// Channel names the per-room event channel.
func Channel(roomID string) string {
	return "room:" + roomID
}

// HistoryKey names the replay buffer backing a channel. The key is room
// scoped, so the TTL synchronizer expires it together with the room.
func HistoryKey(channel string) string {
	return "history:" + channel
}

// Event is one delivered publication.
type Event struct {
	Channel   string          `json:"channel"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// Subscription is a live, filtered stream over one channel. Events() yields
// buffered history first, then live publications in publish order. Close is
// idempotent, stops delivery, and releases the registration; pending events
// may still drain from the channel buffer.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Bus is the event transport. Delivery is best-effort, at-most-once per
// active subscriber per publish; subscribers joining later only see what the
// history buffer retained.
type Bus interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
	Subscribe(ctx context.Context, channel string, eventTypes ...string) (Subscription, error)
	Close() error
}

func matches(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range filter {
		if t == eventType {
			return true
		}
	}
	return false
}

// history is the replay buffer shared by both bus implementations: a
// store-backed list per channel, capped by count on write and by age on
// read. The backstop expiry uses NX so the TTL synchronizer's tighter
// room-scoped expiry always wins.
type history struct {
	store  kv.Store
	maxLen int
	maxAge time.Duration
	now    func() time.Time
}

func (h history) append(ctx context.Context, channel string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := HistoryKey(channel)
	if err := h.store.RPush(ctx, key, string(data)); err != nil {
		return err
	}
	if err := h.store.LTrim(ctx, key, int64(-h.maxLen), -1); err != nil {
		return err
	}
	return h.store.ExpireNX(ctx, key, h.maxAge)
}

func (h history) replay(ctx context.Context, channel string, filter []string) ([]Event, error) {
	raw, err := h.store.LRange(ctx, HistoryKey(channel), 0, -1)
	if err != nil {
		return nil, err
	}
	cutoff := h.now().Add(-h.maxAge).UnixMilli()
	out := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			continue
		}
		if ev.Timestamp < cutoff || !matches(ev.Type, filter) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
