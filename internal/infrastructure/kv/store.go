package kv

import (
	"context"
	"errors"
	"time"
)

// ErrUnchanged can be returned by an UpdateField callback to commit nothing
// while still reporting success to the caller.
var ErrUnchanged = errors.New("kv: value unchanged")

// ErrKeyMissing is returned by UpdateField when the key does not exist.
// Conditional updates never create keys: a key that expired or was torn down
// mid-update must stay gone.
var ErrKeyMissing = errors.New("kv: key missing")

// Store is the slice of a Redis-style key-value server the chat core needs.
// UpdateField must be linearizable per key; everything else follows the usual
// Redis command semantics.
type Store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HSetEx writes hash fields and applies ttl as one atomic unit, so the
	// key can never be observed without its expiry armed.
	HSetEx(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// UpdateField atomically replaces a single hash field. update receives
	// the current value (exists reports whether key and field are present)
	// and returns the replacement. Returning ErrUnchanged commits nothing
	// and succeeds; any other error aborts the update. Implementations
	// retry on write conflicts, but only within a bounded budget; update may
	// therefore run several times and must not carry state across runs.
	UpdateField(ctx context.Context, key, field string, update func(current string, exists bool) (string, error)) error

	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ExpireNX sets an expiry only when the key has none yet, so a backstop
	// TTL never loosens one already applied.
	ExpireNX(ctx context.Context, key string, ttl time.Duration) error

	// TTL reports the remaining lifetime of key. ok is false when the key
	// does not exist; a zero duration with ok true means no expiry is set.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)

	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	Del(ctx context.Context, keys ...string) (int64, error)
	Close() error
}
