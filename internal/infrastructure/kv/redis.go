package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ikoral/burnbox/internal/domain"
)

// casRetries bounds the optimistic-lock loop in UpdateField. Conflicts only
// happen when several callers race the same room, so a small budget is plenty.
const casRetries = 16

// RedisStore implements Store on a shared Redis server. The client carries
// its own bounded retry/backoff for transient failures; whatever still
// escapes is wrapped as domain.ErrStoreUnavailable.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func wrapErr(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	return wrapErr(s.client.HSet(ctx, key, fields).Err())
}

func (s *RedisStore) HSetEx(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return wrapErr(err)
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *RedisStore) UpdateField(ctx context.Context, key, field string, update func(current string, exists bool) (string, error)) error {
	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrKeyMissing
			}

			current, err := tx.HGet(ctx, key, field).Result()
			exists := true
			if errors.Is(err, redis.Nil) {
				current, exists = "", false
			} else if err != nil {
				return err
			}

			next, err := update(current, exists)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, field, next)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrUnchanged):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			// Somebody beat us to the key; re-read and try again.
			continue
		case errors.Is(err, ErrKeyMissing),
			errors.Is(err, domain.ErrRoomNotFound),
			errors.Is(err, domain.ErrRoomFull),
			errors.Is(err, domain.ErrUnauthorized):
			return err
		default:
			return wrapErr(err)
		}
	}
	return fmt.Errorf("%w: conditional update on %q did not settle", domain.ErrStoreUnavailable, key)
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrapErr(s.client.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	return wrapErr(s.client.ExpireNX(ctx, key, ttl).Err())
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, wrapErr(err)
	}
	// go-redis surfaces the raw sentinel replies: -2 key missing, -1 no expiry.
	if d < 0 {
		return 0, d == -1, nil
	}
	return d, true, nil
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return wrapErr(s.client.RPush(ctx, key, args...).Err())
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	out, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return wrapErr(s.client.LTrim(ctx, key, start, stop).Err())
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
