package ratelimiter

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindowRateLimiter counts requests per source in fixed time windows.
// Stale windows are swept in the background so the map doesn't grow with
// every client address ever seen.
type FixedWindowRateLimiter struct {
	windows map[string]*window
	limit   int
	frame   time.Duration
	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
}

func NewFixedWindowRateLimiter(limit int, frame time.Duration) *FixedWindowRateLimiter {
	if limit <= 0 {
		limit = 20
	}
	if frame <= 0 {
		frame = 5 * time.Second
	}
	rl := &FixedWindowRateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		frame:   frame,
		ticker:  time.NewTicker(frame),
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *FixedWindowRateLimiter) Allow(source string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[source]
	if !ok || !now.Before(w.resetAt) {
		rl.windows[source] = &window{count: 1, resetAt: now.Truncate(rl.frame).Add(rl.frame)}
		return true, 0
	}

	if w.count >= rl.limit {
		return false, time.Until(w.resetAt)
	}
	w.count++
	return true, 0
}

func (rl *FixedWindowRateLimiter) sweep() {
	for {
		select {
		case <-rl.ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for source, w := range rl.windows {
				if now.After(w.resetAt) {
					delete(rl.windows, source)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *FixedWindowRateLimiter) Close() {
	close(rl.done)
	rl.ticker.Stop()
}
