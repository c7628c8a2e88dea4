// Package ratelimit throttles per-user message throughput with a
// sliding window of accepted events.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter keeps one bucket of recent accepted timestamps per user.
type Limiter struct {
	mu      sync.Mutex
	buckets map[int64][]time.Time
	now     func() time.Time
}

func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock injects the time source, used by window tests.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		buckets: make(map[int64][]time.Time),
		now:     now,
	}
}

// Allow trims the user's bucket to the period, then either records the
// attempt and reports true, or reports false without recording it. The
// trim, the check, and the append happen under one lock so two
// concurrent calls cannot both observe room under the limit.
func (l *Limiter) Allow(userID int64, limit int, period time.Duration) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[userID]
	for len(bucket) > 0 && now.Sub(bucket[0]) > period {
		bucket = bucket[1:]
	}

	if len(bucket) >= limit {
		l.buckets[userID] = bucket
		return false
	}

	l.buckets[userID] = append(bucket, now)
	return true
}
