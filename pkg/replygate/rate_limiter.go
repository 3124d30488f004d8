package replygate

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Rate gate windows
const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
)

// RateLimitInfo describes the tightest window after a check
type RateLimitInfo struct {
	// Remaining is the number of sends left in the tightest window
	Remaining int

	// ResetTime is when the oldest send in the blocking window expires
	ResetTime time.Time

	// Limit is the cap of the tightest window
	Limit int
}

// RateLimiter enforces RateLimit caps with sliding windows.
// Check never records; Record is called once a reply has actually been sent.
type RateLimiter interface {
	Check(ctx context.Context, userID string, limit RateLimit, now time.Time) (bool, *RateLimitInfo, error)
	Record(ctx context.Context, userID string, now time.Time) error
}

// Window is one sliding-window cap
type Window struct {
	Duration time.Duration
	Limit    int
}

// Windows lists the active windows of l, minute first
func (l RateLimit) Windows() []Window {
	var out []Window
	if l.MaxPerMinute > 0 {
		out = append(out, Window{Duration: MinuteWindow, Limit: l.MaxPerMinute})
	}
	if l.MaxPerHour > 0 {
		out = append(out, Window{Duration: HourWindow, Limit: l.MaxPerHour})
	}
	return out
}

// Enabled reports whether any cap is configured
func (l RateLimit) Enabled() bool {
	return l.MaxPerMinute > 0 || l.MaxPerHour > 0
}

// RateLimitHeaders returns the X-RateLimit-* and Retry-After headers for a rate-limited verdict.
// It returns nil for any other verdict.
func RateLimitHeaders(v Verdict) map[string]string {
	if v.Allow || v.Reason != ReasonRateLimited || v.RateLimit == nil {
		return nil
	}
	headers := map[string]string{
		"X-RateLimit-Limit":     fmt.Sprintf("%d", v.RateLimit.Limit),
		"X-RateLimit-Remaining": fmt.Sprintf("%d", v.RateLimit.Remaining),
		"X-RateLimit-Reset":     fmt.Sprintf("%d", v.RateLimit.ResetTime.Unix()),
	}
	if v.RetryAfter > 0 {
		headers["Retry-After"] = fmt.Sprintf("%.0f", math.Ceil(v.RetryAfter.Seconds()))
	}
	return headers
}
