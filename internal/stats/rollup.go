// Package stats builds read models over the visit stores.
package stats

import (
	"sort"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

const day = 24 * time.Hour

type unit int

const (
	unitHour unit = iota
	unitDay
	unitMonth
)

// window is one fixed rollup period: rows newer than now-span land in one of
// size slots, counted back from now in steps of unit.
type window struct {
	span time.Duration
	size int
	unit unit
}

var (
	windowDay   = window{span: day, size: 24, unit: unitHour}
	windowWeek  = window{span: 7 * day, size: 7, unit: unitDay}
	windowMonth = window{span: 30 * day, size: 30, unit: unitDay}
	windowYear  = window{span: 365 * day, size: 12, unit: unitMonth}
)

// Oldest is how far back a rollup reads.
const Oldest = 365 * day

func monthsBetween(now, t time.Time) int {
	m := (now.Year()-t.Year())*12 + int(now.Month()) - int(t.Month())
	if m > 0 && now.AddDate(0, -m, 0).Before(t) {
		m--
	}
	return m
}

func (w window) elapsed(now, t time.Time) int {
	switch w.unit {
	case unitHour:
		return int(now.Sub(t) / time.Hour)
	case unitDay:
		return int(now.Sub(t) / day)
	default:
		return monthsBetween(now, t)
	}
}

type accumulator struct {
	window   window
	total    int64
	views    []int64
	browser  map[string]int64
	os       map[string]int64
	country  map[string]int64
	referrer map[string]int64
}

func newAccumulator(w window) *accumulator {
	return &accumulator{
		window:   w,
		views:    make([]int64, w.size),
		browser:  make(map[string]int64),
		os:       make(map[string]int64),
		country:  make(map[string]int64),
		referrer: make(map[string]int64),
	}
}

func merge(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] += v
	}
}

func (a *accumulator) add(now time.Time, b *domain.Bucket) {
	if !b.Hour.After(now.Add(-a.window.span)) {
		return
	}

	a.total += b.Total
	if idx := a.window.size - a.window.elapsed(now, b.Hour) - 1; idx >= 0 && idx < a.window.size {
		a.views[idx] += b.Total
	}

	merge(a.browser, b.Browser)
	merge(a.os, b.OS)
	merge(a.country, b.Countries)
	merge(a.referrer, b.Referrers)
}

func items(m map[string]int64, keepZero bool) []domain.StatItem {
	out := make([]domain.StatItem, 0, len(m))
	for name, value := range m {
		if value == 0 && !keepZero {
			continue
		}
		out = append(out, domain.StatItem{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (a *accumulator) result() domain.PeriodStats {
	return domain.PeriodStats{
		Total: a.total,
		Views: a.views,
		Stats: domain.PeriodBreakdown{
			Browser:  items(a.browser, false),
			OS:       items(a.os, false),
			Country:  items(a.country, false),
			Referrer: items(a.referrer, false),
		},
	}
}

// Rollup folds hourly buckets into the day, week, month and year views. A
// bucket counts in every window whose start it falls after.
type Rollup struct {
	now   time.Time
	day   *accumulator
	week  *accumulator
	month *accumulator
	year  *accumulator
}

func NewRollup(now time.Time) *Rollup {
	return &Rollup{
		now:   now.UTC(),
		day:   newAccumulator(windowDay),
		week:  newAccumulator(windowWeek),
		month: newAccumulator(windowMonth),
		year:  newAccumulator(windowYear),
	}
}

func (r *Rollup) Add(b *domain.Bucket) {
	for _, acc := range []*accumulator{r.day, r.week, r.month, r.year} {
		acc.add(r.now, b)
	}
}

func (r *Rollup) Stats(linkID int64) *domain.LinkStats {
	return &domain.LinkStats{
		LinkID:    linkID,
		LastDay:   r.day.result(),
		LastWeek:  r.week.result(),
		LastMonth: r.month.result(),
		LastYear:  r.year.result(),
		UpdatedAt: r.now,
	}
}
