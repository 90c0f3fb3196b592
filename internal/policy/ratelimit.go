package policy

import (
	"net/http"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

// CheckRateLimit decides on a rule given the caller's violation state, whose
// Count already includes the current request. Only the block action denies;
// throttle and captcha are reported through Action and left to the caller.
func CheckRateLimit(now time.Time, rule domain.RateLimitRule, state domain.RateLimitState) Decision {
	if state.BlockedUntil != nil && now.Before(*state.BlockedUntil) {
		until := *state.BlockedUntil
		return Decision{
			Policy:       PolicyRateLimit,
			Reason:       "too many requests",
			Status:       http.StatusTooManyRequests,
			RetryAfter:   until.Sub(now),
			BlockedUntil: &until,
			Action:       domain.RateLimitBlock,
		}
	}

	if rule.MaxRequests <= 0 || state.Count <= rule.MaxRequests {
		return Allow()
	}

	switch rule.Action {
	case domain.RateLimitThrottle, domain.RateLimitCaptcha:
		return Decision{Allowed: true, Policy: PolicyRateLimit, Action: rule.Action}
	default:
		block := rule.BlockDuration
		if block <= 0 {
			block = rule.Window
		}
		until := now.Add(block)
		return Decision{
			Policy:       PolicyRateLimit,
			Reason:       "too many requests",
			Status:       http.StatusTooManyRequests,
			RetryAfter:   block,
			BlockedUntil: &until,
			Action:       domain.RateLimitBlock,
		}
	}
}
