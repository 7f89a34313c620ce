package kv

import (
	"context"
	"errors"
	"sync"
	"time"
)

type entry struct {
	hash     map[string]string
	list     []string
	expireAt time.Time // zero means no expiry
}

// MemoryStore is a single-process Store used by tests and local development.
// Expired keys are dropped lazily on access.
type MemoryStore struct {
	entries map[string]*entry
	now     func() time.Time
	mu      sync.Mutex
}

type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, letting tests move the clock instead
// of sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// get returns the live entry for key, evicting it first if expired.
// Callers must hold mu.
func (s *MemoryStore) get(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		e = &entry{hash: make(map[string]string)}
		s.entries[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	for f, v := range fields {
		e.hash[f] = v
	}
	return nil
}

func (s *MemoryStore) HSetEx(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		e = &entry{hash: make(map[string]string)}
		s.entries[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	for f, v := range fields {
		e.hash[f] = v
	}
	e.expireAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(e.hash))
	for f, v := range e.hash {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) UpdateField(ctx context.Context, key, field string, update func(current string, exists bool) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		return ErrKeyMissing
	}
	current, exists := e.hash[field]

	next, err := update(current, exists)
	if err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}

	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	e.hash[field] = next
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.get(key)
	return ok, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.get(key); ok {
		e.expireAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.get(key); ok && e.expireAt.IsZero() {
		e.expireAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		return 0, false, nil
	}
	if e.expireAt.IsZero() {
		return 0, true, nil
	}
	return e.expireAt.Sub(s.now()), true, nil
}

func (s *MemoryStore) RPush(ctx context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.list = append(e.list, values...)
	return nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		return []string{}, nil
	}

	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []string{}, nil
	}

	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		return nil
	}

	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		e.list = nil
		return nil
	}
	e.list = append([]string(nil), e.list[start:stop+1]...)
	return nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := s.get(key); ok {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
