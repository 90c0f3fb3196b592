package visit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, event domain.VisitEvent, done Steps) (Steps, error)

func (f handlerFunc) ProcessSteps(ctx context.Context, event domain.VisitEvent, done Steps) (Steps, error) {
	return f(ctx, event, done)
}

func TestInProcessQueue_DropsOverCeiling(t *testing.T) {
	release := make(chan struct{})
	var processed atomic.Int64

	q := NewInProcessQueue(handlerFunc(func(ctx context.Context, _ domain.VisitEvent, _ Steps) (Steps, error) {
		<-release
		processed.Add(1)
		return AllSteps, nil
	}), 2, time.Second)

	for i := 0; i < 5; i++ {
		q.Enqueue(context.Background(), domain.VisitEvent{LinkID: int64(i)})
	}

	assert.Equal(t, int64(2), q.InFlight())
	assert.Equal(t, int64(3), q.Dropped())

	close(release)
	require.NoError(t, q.Close())

	assert.Equal(t, int64(2), processed.Load())
	assert.Equal(t, int64(0), q.InFlight())
}

func TestInProcessQueue_SurvivesCancelledRequest(t *testing.T) {
	var gotErr error
	var mu sync.Mutex

	q := NewInProcessQueue(handlerFunc(func(ctx context.Context, _ domain.VisitEvent, _ Steps) (Steps, error) {
		mu.Lock()
		defer mu.Unlock()
		gotErr = ctx.Err()
		return AllSteps, nil
	}), 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	q.Enqueue(ctx, domain.VisitEvent{LinkID: 1})
	cancel()
	require.NoError(t, q.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, gotErr)
}

func setupDurable(t *testing.T, handler Handler, cfg DurableConfig) (*DurableQueue, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewDurableQueue(client, handler, cfg), client
}

func TestDurableQueue_ProcessNext(t *testing.T) {
	var seen []int64
	q, client := setupDurable(t, handlerFunc(func(_ context.Context, event domain.VisitEvent, _ Steps) (Steps, error) {
		seen = append(seen, event.LinkID)
		return AllSteps, nil
	}), DurableConfig{MaxRetries: 1})
	ctx := context.Background()

	q.Enqueue(ctx, domain.VisitEvent{LinkID: 1})
	q.Enqueue(ctx, domain.VisitEvent{LinkID: 2})

	for i := 0; i < 2; i++ {
		took, err := q.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, took)
	}

	assert.Equal(t, []int64{1, 2}, seen)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{}, stats)
	assert.Equal(t, int64(0), client.Exists(ctx, q.activeKey).Val())
	assert.Equal(t, int64(0), client.LLen(ctx, q.processingKey).Val())
}

func TestDurableQueue_RetriesOnceThenDrops(t *testing.T) {
	var masks []Steps
	q, client := setupDurable(t, handlerFunc(func(_ context.Context, _ domain.VisitEvent, done Steps) (Steps, error) {
		masks = append(masks, done)
		return done | StepVisitCount, errors.New("bucket store down")
	}), DurableConfig{MaxRetries: 1})
	ctx := context.Background()

	q.Enqueue(ctx, domain.VisitEvent{LinkID: 9})

	_, err := q.ProcessNext(ctx)
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)

	_, err = q.ProcessNext(ctx)
	require.NoError(t, err)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Failed: 1}, stats)

	// The retry must not repeat the visit count increment.
	assert.Equal(t, []Steps{0, StepVisitCount}, masks)

	raw, err := client.LIndex(ctx, q.failedKey, 0).Result()
	require.NoError(t, err)
	var failed failedJob
	require.NoError(t, json.Unmarshal([]byte(raw), &failed))
	assert.Equal(t, int64(9), failed.Job.Event.LinkID)
	assert.Equal(t, "bucket store down", failed.Error)
}

func TestDurableQueue_SweepRecoversStalledJobs(t *testing.T) {
	q, client := setupDurable(t, handlerFunc(func(context.Context, domain.VisitEvent, Steps) (Steps, error) {
		return AllSteps, nil
	}), DurableConfig{MaxRetries: 1, StallTimeout: 30 * time.Second})
	ctx := context.Background()

	started := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return started }

	for _, job := range []Job{
		{ID: "fresh-attempt", Event: domain.VisitEvent{LinkID: 1}},
		{ID: "last-attempt", Event: domain.VisitEvent{LinkID: 2}, Attempts: 1},
	} {
		data, err := json.Marshal(job)
		require.NoError(t, err)
		require.NoError(t, client.LPush(ctx, q.processingKey, data).Err())
		require.NoError(t, q.markActive(ctx, job, string(data)))
	}

	q.now = func() time.Time { return started.Add(10 * time.Second) }
	require.NoError(t, q.Sweep(ctx))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Active, "jobs within the stall timeout stay active")

	q.now = func() time.Time { return started.Add(time.Minute) }
	require.NoError(t, q.Sweep(ctx))

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Waiting: 1, Failed: 1}, stats)
	assert.Equal(t, int64(0), client.LLen(ctx, q.processingKey).Val())

	raw, err := client.LIndex(ctx, q.waitKey, 0).Result()
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, "fresh-attempt", job.ID)
	assert.Equal(t, 1, job.Attempts)
}

func TestDurableQueue_SweepRequeuesOrphanedClaims(t *testing.T) {
	q, client := setupDurable(t, handlerFunc(func(context.Context, domain.VisitEvent, Steps) (Steps, error) {
		return AllSteps, nil
	}), DurableConfig{})
	ctx := context.Background()

	// A worker claimed the job and died before recording it as active.
	data, err := json.Marshal(Job{ID: "claimed", Event: domain.VisitEvent{LinkID: 4}})
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, q.processingKey, data).Err())

	require.NoError(t, q.Sweep(ctx))
	assert.Equal(t, int64(1), client.LLen(ctx, q.processingKey).Val(), "a fresh claim gets one sweep of grace")

	require.NoError(t, q.Sweep(ctx))
	assert.Equal(t, int64(0), client.LLen(ctx, q.processingKey).Val())

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Waiting: 1}, stats)
}

func TestDurableQueue_ClaimReleasedWhenTrackingFails(t *testing.T) {
	q, client := setupDurable(t, handlerFunc(func(context.Context, domain.VisitEvent, Steps) (Steps, error) {
		t.Fatal("job must not run without an active record")
		return 0, nil
	}), DurableConfig{})
	ctx := context.Background()

	// A string at the active key makes HSET fail with WRONGTYPE.
	require.NoError(t, client.Set(ctx, q.activeKey, "broken", 0).Err())
	q.Enqueue(ctx, domain.VisitEvent{LinkID: 5})

	took, err := q.ProcessNext(ctx)
	assert.True(t, took)
	assert.Error(t, err)

	assert.Equal(t, int64(1), client.LLen(ctx, q.waitKey).Val())
	assert.Equal(t, int64(0), client.LLen(ctx, q.processingKey).Val())
}

func TestDurableQueue_SweepTrimsFailedList(t *testing.T) {
	q, client := setupDurable(t, handlerFunc(func(context.Context, domain.VisitEvent, Steps) (Steps, error) {
		return 0, errors.New("down")
	}), DurableConfig{FailedLimit: 2})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		q.Enqueue(ctx, domain.VisitEvent{LinkID: int64(i)})
		_, err := q.ProcessNext(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), client.LLen(ctx, q.failedKey).Val())

	require.NoError(t, q.Sweep(ctx))

	raw, err := client.LRange(ctx, q.failedKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 2)

	var newest failedJob
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &newest))
	assert.Equal(t, int64(3), newest.Job.Event.LinkID)
}

func TestDurableQueue_StartAndClose(t *testing.T) {
	var processed atomic.Int64
	q, _ := setupDurable(t, handlerFunc(func(context.Context, domain.VisitEvent, Steps) (Steps, error) {
		processed.Add(1)
		return AllSteps, nil
	}), DurableConfig{Concurrency: 2, PollTimeout: time.Second})

	ctx := context.Background()
	q.Start(ctx)

	for i := 0; i < 10; i++ {
		q.Enqueue(ctx, domain.VisitEvent{LinkID: int64(i)})
	}

	assert.Eventually(t, func() bool { return processed.Load() == 10 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, q.Close())
}
