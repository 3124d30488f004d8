package replygate

import "time"

const (
	defaultWindowStart = 0
	defaultWindowEnd   = 23
)

// WithinWindow reports whether now falls inside the working-hours window.
// The hour is read from now as given; callers pick the location.
func WithinWindow(cfg WorkingHours, now time.Time) bool {
	if !cfg.Enabled {
		return true
	}

	start := hourOr(cfg.Start, defaultWindowStart)
	end := hourOr(cfg.End, defaultWindowEnd)
	hour := now.Hour()

	return start <= hour && hour <= end
}

func hourOr(h *int, fallback int) int {
	if h == nil || *h < 0 || *h > 23 {
		return fallback
	}
	return *h
}
