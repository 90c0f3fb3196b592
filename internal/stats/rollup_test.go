package stats

import (
	"testing"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bucketAt(hour time.Time, browser, os, country string, n int) *domain.Bucket {
	b := domain.NewBucket(1, domain.TruncateHour(hour))
	for i := 0; i < n; i++ {
		b.Add(browser, os, country, "Direct")
	}
	return b
}

func TestRollup_WindowMembership(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	r := NewRollup(now)

	r.Add(bucketAt(now.Add(-3*time.Hour), domain.BrowserChrome, domain.OSWindows, "US", 2))
	r.Add(bucketAt(now.Add(-40*24*time.Hour), domain.BrowserSafari, domain.OSIOS, "FR", 5))

	stats := r.Stats(1)

	assert.Equal(t, int64(2), stats.LastDay.Total)
	assert.Equal(t, int64(2), stats.LastWeek.Total)
	assert.Equal(t, int64(2), stats.LastMonth.Total)
	assert.Equal(t, int64(7), stats.LastYear.Total)

	assert.Equal(t, []domain.StatItem{{Name: "chrome", Value: 2}}, stats.LastDay.Stats.Browser)
	assert.Equal(t, []domain.StatItem{{Name: "safari", Value: 5}, {Name: "chrome", Value: 2}}, stats.LastYear.Stats.Browser)
	assert.Equal(t, []domain.StatItem{{Name: "FR", Value: 5}, {Name: "US", Value: 2}}, stats.LastYear.Stats.Country)
}

func TestRollup_ViewIndexes(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	r := NewRollup(now)

	// 14:00 is 30 minutes old, so it sits in the newest hourly slot.
	r.Add(bucketAt(now, domain.BrowserChrome, domain.OSWindows, "US", 1))
	r.Add(bucketAt(now.Add(-3*time.Hour), domain.BrowserChrome, domain.OSWindows, "US", 4))
	r.Add(bucketAt(now.Add(-50*24*time.Hour), domain.BrowserChrome, domain.OSWindows, "US", 3))

	stats := r.Stats(1)

	require.Len(t, stats.LastDay.Views, 24)
	require.Len(t, stats.LastWeek.Views, 7)
	require.Len(t, stats.LastMonth.Views, 30)
	require.Len(t, stats.LastYear.Views, 12)

	assert.Equal(t, int64(1), stats.LastDay.Views[23])
	assert.Equal(t, int64(4), stats.LastDay.Views[20])
	assert.Equal(t, int64(5), stats.LastWeek.Views[6])
	assert.Equal(t, int64(5), stats.LastMonth.Views[29])
	assert.Equal(t, int64(5), stats.LastYear.Views[11])
	assert.Equal(t, int64(3), stats.LastYear.Views[10])
}

func TestRollup_Empty(t *testing.T) {
	stats := NewRollup(time.Now()).Stats(1)

	assert.Zero(t, stats.LastYear.Total)
	assert.Empty(t, stats.LastDay.Stats.Browser)
	assert.Len(t, stats.LastDay.Views, 24)
}

func TestMonthsBetween(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, monthsBetween(now, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, monthsBetween(now, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 11, monthsBetween(now, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)))
}
