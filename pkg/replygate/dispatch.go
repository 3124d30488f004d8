package replygate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dispatch evaluates a trigger, waits out the response delay, renders the reply and records it.
// It never returns a raw failure: denials carry their reason and anything unexpected becomes
// ReasonInternal.
func (e *Engine) Dispatch(ctx context.Context, req DispatchRequest) (out Outcome) {
	start := time.Now()
	plan := e.plans.Lookup(req.PlanID).ID
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("dispatch panicked", userField(req.UserID), planField(plan),
				Field{Key: "panic", Value: fmt.Sprint(r)})
			out = internalOutcome()
		}
		e.metrics.RecordDispatch(plan, out.Success, time.Since(start))
	}()

	if !e.config.DisableUserLock {
		release, err := e.locks.acquire(ctx, req.UserID)
		if err != nil {
			e.logger.Error("failed to acquire user lock", userField(req.UserID), errField(err))
			return internalOutcome()
		}
		defer release()
	}

	verdict, err := e.Evaluate(ctx, req.UserID, req.PlanID, req.Keyword, e.clock.Now())
	if err != nil {
		e.logger.Error("eligibility evaluation failed", userField(req.UserID), planField(plan), errField(err))
		return internalOutcome()
	}
	if !verdict.Allow {
		return Outcome{Success: false, Error: verdict.Reason, Err: verdict.Err}
	}

	// Once allowed, the call runs to completion regardless of the caller's context.
	ctx = context.WithoutCancel(ctx)

	if delay := responseDelay(verdict); delay > 0 {
		e.metrics.RecordDelay(delay)
		e.sleeper.Sleep(delay)
	}

	sentAt := e.clock.Now()
	reply := Render(verdict.Keyword.Reply, RenderContext{Sender: req.Sender, Now: sentAt.In(e.config.Location)})

	if err := e.record(ctx, req, verdict, reply, sentAt); err != nil {
		e.logger.Error("failed to record reply", userField(req.UserID), planField(plan), errField(err))
		return internalOutcome()
	}

	e.logger.Info("reply dispatched", userField(req.UserID), planField(plan),
		Field{Key: "keyword", Value: verdict.Keyword.Keyword})
	return Outcome{Success: true, Reply: reply}
}

// record persists the counters threaded from the verdict and appends the log entry
func (e *Engine) record(ctx context.Context, req DispatchRequest, v Verdict, reply string, sentAt time.Time) error {
	stats := v.Stats
	stats.DailyRepliesUsed++
	stats.MonthlyRepliesUsed++
	stats.LastReplyTime = sentAt

	if err := e.state.SaveStats(ctx, req.UserID, stats); err != nil {
		return err
	}

	entry := LogEntry{
		ID:        uuid.NewString(),
		Keyword:   v.Keyword.Keyword,
		Message:   req.Message,
		Reply:     reply,
		Sender:    req.Sender,
		Timestamp: sentAt,
		Status:    LogStatusSent,
	}
	if err := e.state.AppendLog(ctx, req.UserID, entry); err != nil {
		return err
	}

	// The reply is counted and logged at this point; a lost rate entry only loosens the gate.
	if e.config.EnforceRateLimits {
		if err := e.limiter.Record(ctx, req.UserID, sentAt); err != nil {
			e.logger.Warn("failed to record rate limit send", userField(req.UserID), errField(err))
		}
	}
	return nil
}

// MaxResponseDelay caps keyword delay overrides
const MaxResponseDelay = time.Hour

// responseDelay prefers the keyword's own delay (zero included) over the plan default
func responseDelay(v Verdict) time.Duration {
	if v.Keyword != nil && v.Keyword.Delay != nil {
		secs := *v.Keyword.Delay
		if secs <= 0 {
			return 0
		}
		if secs >= int(MaxResponseDelay/time.Second) {
			return MaxResponseDelay
		}
		return time.Duration(secs) * time.Second
	}
	return v.Limits.ResponseDelay
}

func internalOutcome() Outcome {
	return Outcome{Success: false, Error: ReasonInternal, Err: ErrInternal}
}
