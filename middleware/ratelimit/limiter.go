package ratelimit

import (
	"time"
)

// Limiter applies fixed-window counting on top of a Store. The window starts
// at the first attempt for a key and resets once it has elapsed; attempts
// inside the window never extend it.
type Limiter struct {
	store Store
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

// Allow records an attempt for key and reports whether it is within the
// limit. The increment happens under the store's lock, so two racing calls
// at the boundary cannot both be admitted.
func (l *Limiter) Allow(key string, maxAttempts int, window time.Duration) bool {
	count := l.store.Increment(key, time.Now().Add(window))
	return count <= maxAttempts
}

func (l *Limiter) Reset(key string) {
	l.store.Reset(key)
}

// RetryAfter returns how long until the window for key resets. Zero means
// there is no active window.
func (l *Limiter) RetryAfter(key string) time.Duration {
	_, resetTime, exists := l.store.Get(key)
	if !exists {
		return 0
	}

	remaining := time.Until(resetTime)
	if remaining < 0 {
		return 0
	}

	return remaining
}
