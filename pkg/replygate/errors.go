package replygate

import "errors"

// Denial and failure reasons surfaced to callers in Outcome.Error
const (
	ReasonQuotaExceeded       = "Daily reply limit exceeded"
	ReasonKeywordNotFound     = "Keyword not found"
	ReasonOutsideWorkingHours = "Outside working hours"
	ReasonRateLimited         = "Rate limit exceeded"
	ReasonInternal            = "Internal processing error"
)

var (
	// ErrQuotaExceeded is returned when the daily reply limit is reached
	ErrQuotaExceeded = errors.New("daily reply limit exceeded")

	// ErrKeywordNotFound is returned when no active keyword matches the trigger
	ErrKeywordNotFound = errors.New("keyword not found")

	// ErrOutsideWorkingHours is returned when the working-hours gate is closed
	ErrOutsideWorkingHours = errors.New("outside working hours")

	// ErrRateLimited is returned when the per-minute or per-hour cap is reached
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInternal is returned for any unexpected failure during dispatch
	ErrInternal = errors.New("internal processing error")

	// ErrNotFound is returned by a Store when a key does not exist
	ErrNotFound = errors.New("document not found")

	// ErrStoreUnavailable is returned when no store is configured
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMissingFreePlan is returned when a plan set has no free entry to fall back to
	ErrMissingFreePlan = errors.New("plan set must define the free plan")
)
