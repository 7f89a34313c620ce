package ratelimiter

import "time"

// Limiter decides whether a request from source may proceed. When it may
// not, retryAfter tells the client how long to back off.
type Limiter interface {
	Allow(source string) (allowed bool, retryAfter time.Duration)
	Close()
}
