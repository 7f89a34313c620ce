package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

const subscriberBuffer = 64

// MemoryBus is an in-process Bus for tests and single-node deployments.
// Fan-out follows the usual hub pattern: buffered per-subscriber channels,
// slow consumers lose publications rather than blocking the producer. The
// replay buffer is persisted through the store so teardown and expiry treat
// it like any other room-scoped key.
type MemoryBus struct {
	hist   history
	subs   map[string]map[*memorySubscription]struct{}
	mu     sync.Mutex
	closed bool
}

type MemoryBusOption func(*MemoryBus)

func WithMemoryClock(now func() time.Time) MemoryBusOption {
	return func(b *MemoryBus) {
		b.hist.now = now
	}
}

func NewMemoryBus(store kv.Store, historyLen int, historyAge time.Duration, opts ...MemoryBusOption) *MemoryBus {
	if historyLen <= 0 {
		historyLen = 100
	}
	if historyAge <= 0 {
		historyAge = time.Hour
	}
	b := &MemoryBus{
		hist: history{store: store, maxLen: historyLen, maxAge: historyAge, now: time.Now},
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	filter  []string
	out     chan Event
	once    sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.out
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if set, ok := s.bus.subs[s.channel]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.channel)
			}
		}
		s.bus.mu.Unlock()
		close(s.out)
	})
	return nil
}

func (b *MemoryBus) Publish(ctx context.Context, channel, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := Event{
		Channel:   channel,
		Type:      eventType,
		Payload:   data,
		Timestamp: b.hist.now().UnixMilli(),
	}

	if err := b.hist.append(ctx, channel, ev); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[channel] {
		if !matches(ev.Type, sub.filter) {
			continue
		}
		select {
		case sub.out <- ev:
		default:
			// Subscriber buffer full; best-effort delivery drops it.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string, eventTypes ...string) (Subscription, error) {
	replayed, err := b.hist.replay(ctx, channel, eventTypes)
	if err != nil {
		return nil, err
	}

	// The channel is sized so the whole replay always fits; only live
	// publications are subject to best-effort drops.
	sub := &memorySubscription{
		bus:     b,
		channel: channel,
		filter:  eventTypes,
		out:     make(chan Event, len(replayed)+subscriberBuffer),
	}

	// Buffer the replay before registering for live events, so buffered
	// history is observed strictly before new publications.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range replayed {
		sub.out <- ev
	}

	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*memorySubscription]struct{})
		b.subs[channel] = set
	}
	set[sub] = struct{}{}

	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}
