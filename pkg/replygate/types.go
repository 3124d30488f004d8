package replygate

import (
	"time"
)

// Unlimited marks a plan limit with no ceiling
const Unlimited = -1

// LogStatusSent is the status recorded for a delivered reply
const LogStatusSent = "sent"

// UsageStats holds the per-user reply counters persisted by the UsageState accessor
type UsageStats struct {
	DailyRepliesUsed   int       `json:"dailyRepliesUsed"`
	MonthlyRepliesUsed int       `json:"monthlyRepliesUsed"`
	KeywordsUsed       int       `json:"keywordsUsed"`
	LastReplyTime      time.Time `json:"lastReplyTime"`
	QuotaResetTime     time.Time `json:"quotaResetTime"`
}

// WorkingHours is the quiet-hours window owned by the user's settings.
// Start and End are hour-of-day values; nil or out-of-range values fall back to 0 and 23.
type WorkingHours struct {
	Enabled  bool   `json:"enabled"`
	Start    *int   `json:"start,omitempty"`
	End      *int   `json:"end,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// RateLimit caps how many replies a user may send per minute and per hour (0 = no cap)
type RateLimit struct {
	MaxPerMinute int `json:"maxPerMinute"`
	MaxPerHour   int `json:"maxPerHour"`
}

// Settings is the per-user configuration document written by the external settings surface
type Settings struct {
	WorkingHours WorkingHours `json:"workingHours"`
	RateLimit    RateLimit    `json:"rateLimit"`
}

// KeywordRecord is a user-defined trigger/response pair.
// Delay, when set, overrides the plan's response delay (in seconds).
type KeywordRecord struct {
	Keyword string `json:"keyword"`
	Active  bool   `json:"active"`
	Reply   string `json:"reply"`
	Delay   *int   `json:"delay,omitempty"`
}

// LogEntry is one record of the per-user log ring, newest first
type LogEntry struct {
	ID        string    `json:"id"`
	Keyword   string    `json:"keyword"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// Verdict is the outcome of an eligibility evaluation.
// Stats is the post-reset value that Dispatch threads through to the counter update.
type Verdict struct {
	Allow   bool
	Reason  string
	Err     error
	Keyword *KeywordRecord
	Stats   UsageStats
	Limits  PlanLimits

	// RateLimit is set when the rate gate ran
	RateLimit *RateLimitInfo

	// RetryAfter is how long a rate-limited caller should wait
	RetryAfter time.Duration
}

// DispatchRequest carries a single trigger event
type DispatchRequest struct {
	UserID  string `json:"userId"`
	PlanID  string `json:"planId"`
	Keyword string `json:"keyword"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// Outcome is the structured result of Dispatch. Err holds the matching sentinel error.
type Outcome struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// UsageBreakdown reports a counter against its limit
type UsageBreakdown struct {
	Used       int     `json:"used"`
	Limit      int     `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// PerformanceMetrics summarizes the log ring
type PerformanceMetrics struct {
	TotalReplies int     `json:"totalReplies"`
	SuccessRate  float64 `json:"successRate"`
	// AverageResponseTime is in seconds
	AverageResponseTime float64 `json:"averageResponseTime"`
}

// UsageReport is the read-only analytics view for a user
type UsageReport struct {
	UserID         string             `json:"userId"`
	Plan           string             `json:"plan"`
	Daily          UsageBreakdown     `json:"dailyUsage"`
	Monthly        UsageBreakdown     `json:"monthlyUsage"`
	Keywords       UsageBreakdown     `json:"keywordUsage"`
	RecentActivity []LogEntry         `json:"recentActivity"`
	Performance    PerformanceMetrics `json:"performance"`
	QuotaResetTime time.Time          `json:"quotaResetTime"`
}

// UpgradePrompt tells the caller whether to nudge a free user towards a paid plan
type UpgradePrompt struct {
	Show   bool   `json:"show"`
	Reason string `json:"reason,omitempty"`
}

// Config holds engine configuration
type Config struct {
	// Plans maps plan identifiers to their limits (default: DefaultPlans())
	Plans map[string]PlanLimits

	// Clock supplies "now" (default: system clock)
	Clock Clock

	// Sleeper applies the response delay (default: time.Sleep)
	Sleeper Sleeper

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics records engine operations (default: NoopMetrics)
	Metrics Metrics

	// RateLimiter backs the per-minute/per-hour gate (default: in-memory sliding window)
	RateLimiter RateLimiter

	// EnforceRateLimits turns on the per-minute/per-hour gate from the user's settings
	EnforceRateLimits bool

	// Location is the zone used to read the hour-of-day for working hours (default: time.Local)
	Location *time.Location

	// UseSettingsTimezone evaluates working hours in the user's stored timezone when it is valid
	UseSettingsTimezone bool

	// LogRingSize bounds the per-user log ring (default: 100)
	LogRingSize int

	// DisableUserLock turns off per-user serialization of dispatch read-modify-write cycles
	DisableUserLock bool
}
