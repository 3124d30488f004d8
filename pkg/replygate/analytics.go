package replygate

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

const (
	recentActivitySize = 10
	daysPerMonth       = 30

	// placeholderResponseTime is reported until real latency tracking exists (seconds)
	placeholderResponseTime = 1.2
)

// Analytics builds the usage report for a user from the stored counters and log ring.
// An expired daily window is reported as reset, matching what the evaluator would see; nothing is written.
func (e *Engine) Analytics(ctx context.Context, userID, planID string) (*UsageReport, error) {
	var (
		stats UsageStats
		logs  []LogEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = e.state.Stats(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		logs, err = e.state.Logs(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats = MaybeReset(stats, e.clock.Now())

	limits := e.plans.Lookup(planID)

	monthlyLimit := Unlimited
	if limits.DailyReplies != Unlimited {
		monthlyLimit = limits.DailyReplies * daysPerMonth
	}

	recent := logs
	if len(recent) > recentActivitySize {
		recent = recent[:recentActivitySize]
	}
	recent = append([]LogEntry{}, recent...)

	return &UsageReport{
		UserID:         userID,
		Plan:           limits.ID,
		Daily:          breakdown(stats.DailyRepliesUsed, limits.DailyReplies),
		Monthly:        breakdown(stats.MonthlyRepliesUsed, monthlyLimit),
		Keywords:       breakdown(stats.KeywordsUsed, limits.MaxKeywords),
		RecentActivity: recent,
		Performance:    performance(logs),
		QuotaResetTime: stats.QuotaResetTime,
	}, nil
}

func breakdown(used, limit int) UsageBreakdown {
	return UsageBreakdown{Used: used, Limit: limit, Percentage: Percentage(used, limit)}
}

// Percentage returns used as a rounded share of limit. Unlimited or zero limits report 0.
func Percentage(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(used) / float64(limit) * 100)
}

func performance(logs []LogEntry) PerformanceMetrics {
	m := PerformanceMetrics{
		TotalReplies:        len(logs),
		AverageResponseTime: placeholderResponseTime,
	}
	if len(logs) == 0 {
		return m
	}

	sent := 0
	for _, l := range logs {
		if l.Status == LogStatusSent {
			sent++
		}
	}
	m.SuccessRate = float64(sent) / float64(len(logs)) * 100
	return m
}
