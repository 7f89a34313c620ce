package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ikoral/burnbox/internal/infrastructure/kv"
)

// RedisBus is the production Bus: live delivery over Redis pub/sub, replay
// from the store-backed history list. Publish order on a channel is the
// order publications reach the Redis server.
type RedisBus struct {
	client *redis.Client
	hist   history
	logger *zap.SugaredLogger
}

func NewRedisBus(client *redis.Client, store kv.Store, historyLen int, historyAge time.Duration, logger *zap.SugaredLogger) *RedisBus {
	if historyLen <= 0 {
		historyLen = 100
	}
	if historyAge <= 0 {
		historyAge = time.Hour
	}
	return &RedisBus{
		client: client,
		hist:   history{store: store, maxLen: historyLen, maxAge: historyAge, now: time.Now},
		logger: logger,
	}
}

func (b *RedisBus) Publish(ctx context.Context, channel, eventType string, payload any) error {
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

	wire, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, wire).Err()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Event
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
		close(s.out)
	})
	return err
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string, eventTypes ...string) (Subscription, error) {
	replayed, err := b.hist.replay(ctx, channel, eventTypes)
	if err != nil {
		return nil, err
	}

	pubsub := b.client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round trip so live delivery is active before we
	// hand the stream out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	// Sized so the whole replay always fits; only live publications are
	// subject to best-effort drops.
	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan Event, len(replayed)+subscriberBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	for _, ev := range replayed {
		sub.out <- ev
	}

	go b.pump(pumpCtx, pubsub, sub, eventTypes)

	return sub, nil
}

func (b *RedisBus) pump(ctx context.Context, pubsub *redis.PubSub, sub *redisSubscription, filter []string) {
	defer close(sub.done)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warnw("dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			if !matches(ev.Type, filter) {
				continue
			}
			select {
			case sub.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *RedisBus) Close() error {
	return nil
}
