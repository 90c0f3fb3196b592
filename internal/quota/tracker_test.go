package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNext_Total(t *testing.T) {
	now := time.Now()
	limit := Limit{Max: 2, Period: domain.PeriodTotal}

	res := Next(limit, 0, nil, now)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)
	assert.False(t, res.Reset)

	res = Next(limit, 2, nil, now)
	assert.False(t, res.Allowed)
	assert.Equal(t, StatusLimitReached, res.Status)
	assert.Equal(t, 2, res.Count)
}

func TestNext_FirstClickStartsPeriod(t *testing.T) {
	now := time.Now()
	res := Next(Limit{Max: 5, Period: domain.PeriodDay}, 0, nil, now)

	assert.True(t, res.Allowed)
	assert.True(t, res.Reset)
	assert.Equal(t, 1, res.Count)
	require.NotNil(t, res.Start)
	assert.Equal(t, now, *res.Start)
}

func TestNext_PeriodResetOverridesExhaustedCounter(t *testing.T) {
	now := time.Now()
	start := now.Add(-25 * time.Hour)

	res := Next(Limit{Max: 3, Period: domain.PeriodDay}, 7, &start, now)

	assert.True(t, res.Allowed)
	assert.True(t, res.Reset)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, now, *res.Start)
}

func TestNext_WithinPeriod(t *testing.T) {
	now := time.Now()
	start := now.Add(-30 * time.Minute)
	limit := Limit{Max: 3, Period: domain.PeriodHour}

	res := Next(limit, 2, &start, now)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, start, *res.Start)

	res = Next(limit, 3, &start, now)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Count, "denied click must not increment")
}

func TestPeriodDurations(t *testing.T) {
	cases := map[domain.ClickLimitPeriod]time.Duration{
		domain.PeriodHour:  time.Hour,
		domain.PeriodDay:   24 * time.Hour,
		domain.PeriodWeek:  7 * 24 * time.Hour,
		domain.PeriodMonth: 30 * 24 * time.Hour,
	}
	for period, expected := range cases {
		d, ok := period.Duration()
		assert.True(t, ok)
		assert.Equal(t, expected, d)
	}
	_, ok := domain.PeriodTotal.Duration()
	assert.False(t, ok)
}

func TestTracker_NoLimit(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())

	res, err := tracker.Check(context.Background(), &domain.Link{ID: 1})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, StatusNoLimit, res.Status)

	res, err = tracker.Check(context.Background(), &domain.Link{ID: 1, MaxClicks: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, StatusNoLimit, res.Status)
}

func TestTracker_TotalSequential(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())
	link := &domain.Link{ID: 7, MaxClicks: intPtr(3), ClickLimitPeriod: domain.PeriodTotal}

	var got []bool
	for i := 0; i < 4; i++ {
		res, err := tracker.Check(context.Background(), link)
		require.NoError(t, err)
		got = append(got, res.Allowed)
	}

	assert.Equal(t, []bool{true, true, true, false}, got)
}

func TestTracker_ConcurrentMonotonicity(t *testing.T) {
	const limit = 10
	const callers = 64

	store := NewMemoryStore()
	tracker := NewTracker(store)
	link := &domain.Link{ID: 42, MaxClicks: intPtr(limit), ClickLimitPeriod: domain.PeriodTotal}

	var allowed int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := tracker.Check(context.Background(), link)
			if err == nil && res.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(limit), allowed)
	assert.Equal(t, limit, store.Count(link.ID))
}

func TestTracker_PeriodicConcurrentResetHappensOnce(t *testing.T) {
	store := NewMemoryStore()
	stale := time.Now().Add(-2 * time.Hour)
	store.Seed(9, 5, &stale)

	tracker := NewTracker(store)
	link := &domain.Link{ID: 9, MaxClicks: intPtr(5), ClickLimitPeriod: domain.PeriodHour}

	var resets, allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tracker.Check(context.Background(), link)
			if err != nil {
				return
			}
			if res.Reset {
				atomic.AddInt64(&resets, 1)
			}
			if res.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), resets)
	assert.Equal(t, int64(5), allowed)
}

func TestTracker_Peek(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())
	start := time.Now().Add(-time.Minute)

	link := &domain.Link{ID: 3, MaxClicks: intPtr(2), ClickLimitPeriod: domain.PeriodDay, ClickCountPeriod: 2, ClickPeriodStart: &start}
	assert.False(t, tracker.Peek(link).Allowed)

	link.ClickCountPeriod = 1
	assert.True(t, tracker.Peek(link).Allowed)
}
