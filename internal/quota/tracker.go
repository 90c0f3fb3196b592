// Package quota enforces per-link click limits over fixed periods.
package quota

import (
	"context"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

type Status string

const (
	StatusNoLimit      Status = "no_limit"
	StatusWithinLimit  Status = "within_limit"
	StatusLimitReached Status = "limit_reached"
)

type Limit struct {
	Max    int
	Period domain.ClickLimitPeriod
}

type Result struct {
	Status  Status
	Allowed bool
	Reset   bool
	Count   int
	Start   *time.Time
}

// Store applies Next atomically against the persisted counter pair of a link.
type Store interface {
	ClaimClick(ctx context.Context, linkID int64, limit Limit, now time.Time) (Result, error)
}

// LimitOf reports the link's configured limit, false when clicks are
// unlimited.
func LimitOf(link *domain.Link) (Limit, bool) {
	if link.MaxClicks == nil || *link.MaxClicks <= 0 {
		return Limit{}, false
	}
	period := link.ClickLimitPeriod
	if _, ok := period.Duration(); !ok {
		period = domain.PeriodTotal
	}
	return Limit{Max: *link.MaxClicks, Period: period}, true
}

// Next computes the transition for one click. A period that has elapsed, or
// never started, resets the counter to 1 regardless of its previous value.
// A denied click leaves the state untouched.
func Next(limit Limit, count int, start *time.Time, now time.Time) Result {
	dur, periodic := limit.Period.Duration()

	if !periodic {
		if count < limit.Max {
			return Result{Status: StatusWithinLimit, Allowed: true, Count: count + 1, Start: start}
		}
		return Result{Status: StatusLimitReached, Count: count, Start: start}
	}

	if start == nil || now.Sub(*start) >= dur {
		started := now
		return Result{Status: StatusWithinLimit, Allowed: true, Reset: true, Count: 1, Start: &started}
	}
	if count < limit.Max {
		return Result{Status: StatusWithinLimit, Allowed: true, Count: count + 1, Start: start}
	}
	return Result{Status: StatusLimitReached, Count: count, Start: start}
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Check consumes one click of the link's quota.
func (t *Tracker) Check(ctx context.Context, link *domain.Link) (Result, error) {
	limit, ok := LimitOf(link)
	if !ok {
		return Result{Status: StatusNoLimit, Allowed: true}, nil
	}
	return t.store.ClaimClick(ctx, link.ID, limit, t.now().UTC())
}

// Peek reports whether a click would be admitted given the link's last known
// counters, without consuming anything.
func (t *Tracker) Peek(link *domain.Link) Result {
	limit, ok := LimitOf(link)
	if !ok {
		return Result{Status: StatusNoLimit, Allowed: true}
	}
	return Next(limit, link.ClickCountPeriod, link.ClickPeriodStart, t.now().UTC())
}
