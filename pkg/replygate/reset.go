package replygate

import "time"

// QuotaWindow is the length of the rolling daily quota window
const QuotaWindow = 24 * time.Hour

// MaybeReset rolls the daily counter over when now is strictly after the stored reset time.
// The window is anchored at the first reset (a zero reset time rolls over immediately) rather
// than at calendar midnight. The input is never modified; calling it twice with the same now
// yields the same state.
func MaybeReset(stats UsageStats, now time.Time) UsageStats {
	if !now.After(stats.QuotaResetTime) {
		return stats
	}

	stats.DailyRepliesUsed = 0
	stats.QuotaResetTime = now.Add(QuotaWindow)
	return stats
}
