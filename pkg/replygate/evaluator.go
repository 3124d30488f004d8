package replygate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Evaluate runs the eligibility checks in order and stops at the first failure:
// daily quota, active keyword, working hours, then the optional rate gate.
// A denial is reported through the Verdict; the error is only set for store failures.
func (e *Engine) Evaluate(ctx context.Context, userID, planID, keyword string, now time.Time) (Verdict, error) {
	stats, err := e.state.Stats(ctx, userID)
	if err != nil {
		return Verdict{}, err
	}
	stats = MaybeReset(stats, now)

	limits := e.plans.Lookup(planID)
	verdict := Verdict{Stats: stats, Limits: limits}

	if limits.DailyReplies != Unlimited && stats.DailyRepliesUsed >= limits.DailyReplies {
		return e.deny(verdict, userID, ReasonQuotaExceeded, ErrQuotaExceeded), nil
	}

	keywords, err := e.state.Keywords(ctx, userID)
	if err != nil {
		return Verdict{}, err
	}
	record := MatchKeyword(keywords, keyword)
	if record == nil {
		return e.deny(verdict, userID, ReasonKeywordNotFound, ErrKeywordNotFound), nil
	}
	verdict.Keyword = record

	settings, err := e.state.Settings(ctx, userID)
	if err != nil {
		return Verdict{}, err
	}
	if !WithinWindow(settings.WorkingHours, now.In(e.location(userID, settings.WorkingHours))) {
		return e.deny(verdict, userID, ReasonOutsideWorkingHours, ErrOutsideWorkingHours), nil
	}

	if e.config.EnforceRateLimits && settings.RateLimit.Enabled() {
		start := time.Now()
		allowed, info, err := e.limiter.Check(ctx, userID, settings.RateLimit, now)
		e.metrics.RecordRateLimitCheck(allowed, time.Since(start))
		if err != nil {
			return Verdict{}, fmt.Errorf("failed to check rate limit: %w", err)
		}
		verdict.RateLimit = info
		if !allowed {
			if info != nil && info.ResetTime.After(now) {
				verdict.RetryAfter = info.ResetTime.Sub(now)
			}
			return e.deny(verdict, userID, ReasonRateLimited, ErrRateLimited), nil
		}
	}

	verdict.Allow = true
	e.metrics.RecordVerdict(limits.ID, "", true)
	return verdict, nil
}

// Check evaluates eligibility at the engine clock's current time without recording anything
func (e *Engine) Check(ctx context.Context, userID, planID, keyword string) (Verdict, error) {
	return e.Evaluate(ctx, userID, planID, keyword, e.clock.Now())
}

func (e *Engine) deny(v Verdict, userID, reason string, err error) Verdict {
	v.Allow = false
	v.Reason = reason
	v.Err = err
	e.metrics.RecordVerdict(v.Limits.ID, reason, false)
	e.logger.Debug("reply denied", userField(userID), planField(v.Limits.ID), Field{Key: "reason", Value: reason})
	return v
}

// MatchKeyword returns a copy of the first active record whose keyword equals trigger,
// ignoring case, or nil.
func MatchKeyword(keywords []KeywordRecord, trigger string) *KeywordRecord {
	for _, k := range keywords {
		if k.Active && strings.EqualFold(k.Keyword, trigger) {
			match := k
			return &match
		}
	}
	return nil
}
