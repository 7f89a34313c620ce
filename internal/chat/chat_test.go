package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/ikoral/burnbox/internal/infrastructure/events"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fixture wires the whole core against the in-memory store and bus, all on
// one controllable clock.
type fixture struct {
	clock     *fakeClock
	store     *kv.MemoryStore
	bus       *events.MemoryBus
	registry  *Registry
	gate      *Gate
	expiry    *Synchronizer
	messages  *Messages
	destroyer *Destroyer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	store := kv.NewMemoryStore(kv.WithClock(clock.Now))
	bus := events.NewMemoryBus(store, 100, time.Hour, events.WithMemoryClock(clock.Now))

	registry := NewRegistry(store, 10*time.Minute)
	registry.now = clock.Now
	gate := NewGate(store, registry)
	expiry := NewSynchronizer(store, registry)
	expiry.now = clock.Now
	messages := NewMessages(store, expiry, bus)
	messages.now = clock.Now
	destroyer := NewDestroyer(store, gate, bus)

	return &fixture{
		clock:     clock,
		store:     store,
		bus:       bus,
		registry:  registry,
		gate:      gate,
		expiry:    expiry,
		messages:  messages,
		destroyer: destroyer,
	}
}
