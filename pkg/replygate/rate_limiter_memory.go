package replygate

import (
	"context"
	"sync"
	"time"
)

// MemoryRateLimiter keeps recent send timestamps per user in memory.
// Useful for single-instance deployments; see storage/redis for a shared implementation.
type MemoryRateLimiter struct {
	mu    sync.Mutex
	sends map[string]*sendLog
}

type sendLog struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewMemoryRateLimiter creates a new in-memory rate limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{sends: make(map[string]*sendLog)}
}

func (r *MemoryRateLimiter) logFor(userID string) *sendLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.sends[userID]
	if !ok {
		l = &sendLog{}
		r.sends[userID] = l
	}
	return l
}

// Check reports whether another send fits in every configured window
func (r *MemoryRateLimiter) Check(
	_ context.Context, userID string, limit RateLimit, now time.Time,
) (bool, *RateLimitInfo, error) {
	windows := limit.Windows()
	if len(windows) == 0 {
		return true, &RateLimitInfo{Remaining: -1, Limit: Unlimited}, nil
	}

	l := r.logFor(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)

	var info *RateLimitInfo
	for _, w := range windows {
		inWindow, oldest := l.countSince(now.Add(-w.Duration))
		remaining := w.Limit - inWindow
		resetTime := now.Add(w.Duration)
		if inWindow > 0 {
			resetTime = oldest.Add(w.Duration)
		}

		if remaining <= 0 {
			return false, &RateLimitInfo{Remaining: 0, ResetTime: resetTime, Limit: w.Limit}, nil
		}
		if info == nil || remaining < info.Remaining {
			info = &RateLimitInfo{Remaining: remaining, ResetTime: resetTime, Limit: w.Limit}
		}
	}

	return true, info, nil
}

// Record appends a send timestamp for userID
func (r *MemoryRateLimiter) Record(_ context.Context, userID string, now time.Time) error {
	l := r.logFor(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)
	l.timestamps = append(l.timestamps, now)
	return nil
}

// evict drops timestamps older than the widest window
func (l *sendLog) evict(now time.Time) {
	cutoff := now.Add(-HourWindow)
	valid := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	l.timestamps = valid
}

// countSince returns how many timestamps are after cutoff and the oldest of them
func (l *sendLog) countSince(cutoff time.Time) (int, time.Time) {
	count := 0
	var oldest time.Time
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			if count == 0 {
				oldest = ts
			}
			count++
		}
	}
	return count, oldest
}
