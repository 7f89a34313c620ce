package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/events"
	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

func (f *fixture) newRoomWithMembers(t *testing.T) (roomID, tokenA, tokenB string) {
	t.Helper()
	req := require.New(t)
	ctx := context.Background()

	roomID, err := f.registry.Create(ctx)
	req.NoError(err)
	tokenA, err = f.gate.Admit(ctx, roomID, "")
	req.NoError(err)
	tokenB, err = f.gate.Admit(ctx, roomID, "")
	req.NoError(err)
	return roomID, tokenA, tokenB
}

func TestMessages_AuthorshipRedaction(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, tokenB := f.newRoomWithMembers(t)

	sent, err := f.messages.Append(ctx, roomID, "alice", "hi", tokenA)
	req.NoError(err)
	req.NotEmpty(sent.ID)
	req.Equal(tokenA, sent.Token)

	// The author recognizes their own message.
	own, err := f.messages.List(ctx, roomID, tokenA)
	req.NoError(err)
	req.Len(own, 1)
	req.Equal(tokenA, own[0].Token)
	req.Equal("hi", own[0].Text)

	// The other side never sees the author's credential.
	foreign, err := f.messages.List(ctx, roomID, tokenB)
	req.NoError(err)
	req.Len(foreign, 1)
	req.Empty(foreign[0].Token)
	req.Equal("hi", foreign[0].Text)

	// Redaction is an omission on the wire, not an empty field.
	data, err := json.Marshal(foreign[0])
	req.NoError(err)
	req.NotContains(string(data), "token")
}

func TestMessages_ListPreservesAppendOrder(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, tokenB := f.newRoomWithMembers(t)

	for i := 0; i < 5; i++ {
		token := tokenA
		if i%2 == 1 {
			token = tokenB
		}
		_, err := f.messages.Append(ctx, roomID, "someone", fmt.Sprintf("msg-%d", i), token)
		req.NoError(err)
	}

	msgs, err := f.messages.List(ctx, roomID, tokenA)
	req.NoError(err)
	req.Len(msgs, 5)
	for i, msg := range msgs {
		req.Equal(fmt.Sprintf("msg-%d", i), msg.Text)
	}
}

func TestMessages_AppendPublishesRedactedEvent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, _ := f.newRoomWithMembers(t)

	sub, err := f.bus.Subscribe(ctx, events.Channel(roomID), events.EventMessage)
	req.NoError(err)
	defer sub.Close()

	_, err = f.messages.Append(ctx, roomID, "alice", "secret handshake", tokenA)
	req.NoError(err)

	ev := <-sub.Events()
	req.Equal(events.EventMessage, ev.Type)

	var relayed domain.Message
	req.NoError(json.Unmarshal(ev.Payload, &relayed))
	req.Equal("secret handshake", relayed.Text)
	req.Empty(relayed.Token, "owner token must not leave the store via the bus")
}

// vanishedMetaStore reports the room alive for one extra liveness check after
// the metadata key is gone, reproducing expiry landing between the check and
// the log write.
type vanishedMetaStore struct {
	kv.Store
	metaKey string
	lies    int
}

func (s *vanishedMetaStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == s.metaKey && s.lies > 0 {
		s.lies--
		return true, nil
	}
	return s.Store.Exists(ctx, key)
}

func TestMessages_AppendPastExpiryLeavesNoImmortalLog(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, _ := f.newRoomWithMembers(t)

	// The room vanishes right after the liveness check passes.
	_, err := f.store.Del(ctx, roomKeys(roomID)...)
	req.NoError(err)
	store := &vanishedMetaStore{Store: f.store, metaKey: metaKey(roomID), lies: 1}
	msgs := NewMessages(store, f.expiry, f.bus)
	msgs.now = f.clock.Now

	_, err = msgs.Append(ctx, roomID, "alice", "too late", tokenA)
	req.ErrorIs(err, domain.ErrRoomNotFound)

	// The push recreated the log key; it must carry an expiry and die
	// within the lifetime ceiling.
	ttl, ok, err := f.store.TTL(ctx, messagesKey(roomID))
	req.NoError(err)
	req.True(ok)
	req.Positive(ttl)

	f.clock.Advance(domain.MaxRoomLifetime + time.Second)
	exists, err := f.store.Exists(ctx, messagesKey(roomID))
	req.NoError(err)
	req.False(exists)
}

func TestMessages_RoomGone(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	roomID, tokenA, _ := f.newRoomWithMembers(t)

	f.clock.Advance(11 * time.Minute) // past the ceiling

	_, err := f.messages.Append(ctx, roomID, "alice", "anyone?", tokenA)
	req.ErrorIs(err, domain.ErrRoomNotFound)

	_, err = f.messages.List(ctx, roomID, tokenA)
	req.ErrorIs(err, domain.ErrRoomNotFound)
}
