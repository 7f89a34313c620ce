package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBus(t *testing.T, historyLen int, historyAge time.Duration) (*MemoryBus, *kv.MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	store := kv.NewMemoryStore(kv.WithClock(clock.Now))
	bus := NewMemoryBus(store, historyLen, historyAge, WithMemoryClock(clock.Now))
	t.Cleanup(func() { _ = bus.Close() })
	return bus, store, clock
}

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed while an event was expected")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryBus_LiveDelivery(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, Channel("r1"))
	req.NoError(err)
	defer sub.Close()

	req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]string{"text": "hi"}))

	ev := receive(t, sub)
	req.Equal(Channel("r1"), ev.Channel)
	req.Equal(EventMessage, ev.Type)

	var payload map[string]string
	req.NoError(json.Unmarshal(ev.Payload, &payload))
	req.Equal("hi", payload["text"])
}

func TestMemoryBus_ReplayBeforeLive(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]int{"seq": i}))
	}

	sub, err := bus.Subscribe(ctx, Channel("r1"))
	req.NoError(err)
	defer sub.Close()

	req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]int{"seq": 3}))

	for want := 0; want < 4; want++ {
		ev := receive(t, sub)
		var payload map[string]int
		req.NoError(json.Unmarshal(ev.Payload, &payload))
		req.Equal(want, payload["seq"])
	}
}

func TestMemoryBus_TypeFilter(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]string{"text": "old"}))

	sub, err := bus.Subscribe(ctx, Channel("r1"), EventDestroy)
	req.NoError(err)
	defer sub.Close()

	req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]string{"text": "new"}))
	req.NoError(bus.Publish(ctx, Channel("r1"), EventDestroy, map[string]bool{"isDestroyed": true}))

	ev := receive(t, sub)
	req.Equal(EventDestroy, ev.Type)
	req.Empty(sub.Events())
}

func TestMemoryBus_ChannelsAreIsolated(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	subA, err := bus.Subscribe(ctx, Channel("a"))
	req.NoError(err)
	defer subA.Close()
	subB, err := bus.Subscribe(ctx, Channel("b"))
	req.NoError(err)
	defer subB.Close()

	req.NoError(bus.Publish(ctx, Channel("a"), EventMessage, map[string]string{"text": "only-a"}))

	ev := receive(t, subA)
	req.Equal(Channel("a"), ev.Channel)
	req.Empty(subB.Events())
}

func TestMemoryBus_HistoryCappedByLength(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 5, time.Hour)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]int{"seq": i}))
	}

	sub, err := bus.Subscribe(ctx, Channel("r1"))
	req.NoError(err)
	defer sub.Close()

	// Only the newest five survive the trim.
	for want := 7; want < 12; want++ {
		ev := receive(t, sub)
		var payload map[string]int
		req.NoError(json.Unmarshal(ev.Payload, &payload))
		req.Equal(want, payload["seq"])
	}
	req.Empty(sub.Events())
}

func TestMemoryBus_ReplayDeliversFullHistoryBuffer(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	// Fill the history buffer to its cap, well past the live-delivery
	// buffer size; a late subscriber still gets every retained event.
	for i := 0; i < 100; i++ {
		req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]int{"seq": i}))
	}

	sub, err := bus.Subscribe(ctx, Channel("r1"))
	req.NoError(err)
	defer sub.Close()

	for want := 0; want < 100; want++ {
		ev := receive(t, sub)
		var payload map[string]int
		req.NoError(json.Unmarshal(ev.Payload, &payload))
		req.Equal(want, payload["seq"])
	}
	req.Empty(sub.Events())
}

func TestMemoryBus_HistoryCappedByAge(t *testing.T) {
	req := require.New(t)
	bus, store, clock := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]string{"text": "stale"}))

	clock.Advance(59 * time.Minute)
	req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]string{"text": "fresh"}))

	// The room-scoped expiry normally keeps the buffer key alive; stand in
	// for it so only the per-event age cutoff decides what replays.
	req.NoError(store.Expire(ctx, HistoryKey(Channel("r1")), time.Hour))

	clock.Advance(2 * time.Minute)

	sub, err := bus.Subscribe(ctx, Channel("r1"))
	req.NoError(err)
	defer sub.Close()

	ev := receive(t, sub)
	var payload map[string]string
	req.NoError(json.Unmarshal(ev.Payload, &payload))
	req.Equal("fresh", payload["text"])
	req.Empty(sub.Events())
}

func TestMemoryBus_CloseStopsDelivery(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, Channel("r1"))
	req.NoError(err)

	req.NoError(sub.Close())
	req.NoError(sub.Close())

	req.NoError(bus.Publish(ctx, Channel("r1"), EventMessage, map[string]string{"text": "late"}))

	_, open := <-sub.Events()
	req.False(open)
}

func TestMemoryBus_CloseClosesSubscribers(t *testing.T) {
	req := require.New(t)
	bus, _, _ := newTestBus(t, 100, time.Hour)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, Channel("r1"))
	req.NoError(err)

	req.NoError(bus.Close())
	req.NoError(bus.Close())

	_, open := <-sub.Events()
	req.False(open)
}
