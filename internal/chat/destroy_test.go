package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/events"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

func drainDestroyEvents(sub events.Subscription) int {
	count := 0
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return count
			}
			if ev.Type == events.EventDestroy {
				count++
			}
		default:
			return count
		}
	}
}

func TestDestroyer_RemovesEveryArtifact(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, _ := f.newRoomWithMembers(t)
	_, err := f.messages.Append(ctx, roomID, "alice", "burn after reading", tokenA)
	req.NoError(err)

	req.NoError(f.destroyer.Destroy(ctx, roomID, tokenA))

	for _, key := range roomKeys(roomID) {
		exists, err := f.store.Exists(ctx, key)
		req.NoError(err)
		req.False(exists, "key %s survived teardown", key)
	}

	exists, err := f.registry.Exists(ctx, roomID)
	req.NoError(err)
	req.False(exists)
}

func TestDestroyer_Unauthorized(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, _, _ := f.newRoomWithMembers(t)

	req.ErrorIs(f.destroyer.Destroy(ctx, roomID, "stranger"), domain.ErrUnauthorized)
	req.ErrorIs(f.destroyer.Destroy(ctx, roomID, ""), domain.ErrUnauthorized)

	exists, err := f.registry.Exists(ctx, roomID)
	req.NoError(err)
	req.True(exists)
}

func TestDestroyer_IdempotentWithSinglePublication(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, _ := f.newRoomWithMembers(t)

	sub, err := f.bus.Subscribe(ctx, events.Channel(roomID), events.EventDestroy)
	req.NoError(err)
	defer sub.Close()

	req.NoError(f.destroyer.Destroy(ctx, roomID, tokenA))
	req.NoError(f.destroyer.Destroy(ctx, roomID, tokenA))

	req.Equal(1, drainDestroyEvents(sub))

	// A room that never existed destroys as a no-op too.
	req.NoError(f.destroyer.Destroy(ctx, "long-gone", tokenA))
}

// contendedStore forces the conditional-update retry path: the first callback
// run observes stale state and its result is thrown away, a racing writer
// commits the field, then the update runs again against the committed value.
type contendedStore struct {
	kv.Store
	field    string
	racerVal string
	races    int
}

func (s *contendedStore) UpdateField(ctx context.Context, key, field string, update func(current string, exists bool) (string, error)) error {
	if field == s.field && s.races > 0 {
		s.races--
		if _, err := update("", false); err != nil && !errors.Is(err, kv.ErrUnchanged) {
			return err
		}
		err := s.Store.UpdateField(ctx, key, field, func(string, bool) (string, error) {
			return s.racerVal, nil
		})
		if err != nil {
			return err
		}
	}
	return s.Store.UpdateField(ctx, key, field, update)
}

func TestDestroyer_LostClaimRetryDoesNotPublish(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, _ := f.newRoomWithMembers(t)

	sub, err := f.bus.Subscribe(ctx, events.Channel(roomID), events.EventDestroy)
	req.NoError(err)
	defer sub.Close()

	// This destroyer's claim write conflicts once; by the time it retries,
	// another caller holds the destroyed marker.
	store := &contendedStore{Store: f.store, field: destroyedField, racerVal: "1", races: 1}
	loser := NewDestroyer(store, f.gate, f.bus)

	req.NoError(loser.Destroy(ctx, roomID, tokenA))

	// The losing caller must neither publish nor tear down; that is the
	// claim holder's job.
	req.Equal(0, drainDestroyEvents(sub))
	exists, err := f.store.Exists(ctx, metaKey(roomID))
	req.NoError(err)
	req.True(exists)
}

func TestDestroyer_ConcurrentDestroysPublishOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, tokenB := f.newRoomWithMembers(t)

	sub, err := f.bus.Subscribe(ctx, events.Channel(roomID), events.EventDestroy)
	req.NoError(err)
	defer sub.Close()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		token := tokenA
		if i%2 == 1 {
			token = tokenB
		}
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			errs <- f.destroyer.Destroy(ctx, roomID, token)
		}(token)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		req.NoError(err)
	}
	req.Equal(1, drainDestroyEvents(sub))
}
