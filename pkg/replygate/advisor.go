package replygate

import "context"

// Upgrade prompt reasons
const (
	PromptApproachingDailyLimit = "Approaching daily reply limit"
	PromptKeywordLimitReached   = "Keyword limit reached"
)

// dailyPromptThreshold is the share of the daily quota at which free users are prompted
const dailyPromptThreshold = 0.8

// ShouldPrompt decides whether to show an upgrade prompt. Only the free plan prompts;
// unknown plan identifiers resolve to free. The daily-limit reason wins when both apply.
func (e *Engine) ShouldPrompt(ctx context.Context, userID, planID string) (UpgradePrompt, error) {
	limits := e.plans.Lookup(planID)
	if limits.ID != PlanFree {
		return UpgradePrompt{}, nil
	}

	stats, err := e.state.Stats(ctx, userID)
	if err != nil {
		return UpgradePrompt{}, err
	}
	stats = MaybeReset(stats, e.clock.Now())

	if limits.DailyReplies != Unlimited &&
		float64(stats.DailyRepliesUsed) >= dailyPromptThreshold*float64(limits.DailyReplies) {
		return UpgradePrompt{Show: true, Reason: PromptApproachingDailyLimit}, nil
	}
	if limits.MaxKeywords != Unlimited && stats.KeywordsUsed >= limits.MaxKeywords {
		return UpgradePrompt{Show: true, Reason: PromptKeywordLimitReached}, nil
	}
	return UpgradePrompt{}, nil
}
