package visit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type DurableConfig struct {
	Name          string
	Concurrency   int
	MaxRetries    int
	StallTimeout  time.Duration
	SweepInterval time.Duration
	PollTimeout   time.Duration
	JobTimeout    time.Duration
	FailedLimit   int64
}

func (c DurableConfig) withDefaults() DurableConfig {
	if c.Name == "" {
		c.Name = "visit"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 12
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 30 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.FailedLimit <= 0 {
		c.FailedLimit = 1000
	}
	return c
}

type Job struct {
	ID         string            `json:"id"`
	Event      domain.VisitEvent `json:"event"`
	Attempts   int               `json:"attempts"`
	Done       Steps             `json:"done"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

type activeJob struct {
	Job       Job       `json:"job"`
	Raw       string    `json:"raw"`
	StartedAt time.Time `json:"started_at"`
}

type failedJob struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// DurableQueue is a Redis-backed job queue. Waiting jobs sit in a list and
// are claimed by moving them atomically into a processing list, so a worker
// that dies mid-claim never loses a job. Running jobs are tracked in a hash
// with their start time until they complete, fail or are recovered by the
// sweeper. Jobs that exhaust their retries are kept in a capped failed list.
type DurableQueue struct {
	client  *redis.Client
	handler Handler
	cfg     DurableConfig
	log     *slog.Logger

	waitKey       string
	processingKey string
	activeKey     string
	failedKey     string

	// orphans holds processing entries without an active record seen by the
	// previous sweep.
	orphanMu sync.Mutex
	orphans  map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewDurableQueue(client *redis.Client, handler Handler, cfg DurableConfig) *DurableQueue {
	cfg = cfg.withDefaults()
	return &DurableQueue{
		client:    client,
		handler:   handler,
		cfg:       cfg,
		log:       logger.Component("queue", slog.String("queue", cfg.Name)),
		waitKey:       fmt.Sprintf("queue:%s:wait", cfg.Name),
		processingKey: fmt.Sprintf("queue:%s:processing", cfg.Name),
		activeKey:     fmt.Sprintf("queue:%s:active", cfg.Name),
		failedKey:     fmt.Sprintf("queue:%s:failed", cfg.Name),
		orphans:       make(map[string]struct{}),
		now:           time.Now,
	}
}

func (q *DurableQueue) Enqueue(ctx context.Context, event domain.VisitEvent) {
	job := Job{
		ID:         uuid.New().String(),
		Event:      event,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.push(ctx, job); err != nil {
		logger.FromContext(ctx).Error("Failed to enqueue visit",
			slog.Int64("link_id", event.LinkID),
			slog.String("error", err.Error()),
		)
	}
}

func (q *DurableQueue) push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.waitKey, data).Err()
}

// Start launches the worker pool and the sweeper.
func (q *DurableQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.work(ctx)
		}()
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.Sweep(ctx); err != nil && ctx.Err() == nil {
					q.log.Error("Queue sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	q.log.Info("Visit queue started", slog.Int("concurrency", q.cfg.Concurrency))
}

func (q *DurableQueue) Close() error {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	return nil
}

func (q *DurableQueue) work(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := q.ProcessNext(ctx); err != nil && ctx.Err() == nil {
			q.log.Error("Queue worker error", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext waits up to the poll timeout for one job and runs it. It
// reports whether a job was taken.
func (q *DurableQueue) ProcessNext(ctx context.Context) (bool, error) {
	raw, err := q.client.BLMove(ctx, q.waitKey, q.processingKey, "RIGHT", "LEFT", q.cfg.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.log.Error("Discarding undecodable job", slog.String("error", err.Error()))
		return true, q.client.LRem(context.WithoutCancel(ctx), q.processingKey, 1, raw).Err()
	}

	if err := q.markActive(ctx, job, raw); err != nil {
		if rerr := q.release(context.WithoutCancel(ctx), raw); rerr != nil {
			return true, errors.Join(err, rerr)
		}
		return true, err
	}

	jobCtx := logger.WithLogger(context.WithoutCancel(ctx), q.log.With(
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts),
	))
	jobCtx, cancel := context.WithTimeout(jobCtx, q.cfg.JobTimeout)
	done, procErr := q.handler.ProcessSteps(jobCtx, job.Event, job.Done)
	cancel()
	job.Done = done

	owned, err := q.client.HDel(context.WithoutCancel(ctx), q.activeKey, job.ID).Result()
	if err != nil {
		return true, err
	}
	if err := q.client.LRem(context.WithoutCancel(ctx), q.processingKey, 1, raw).Err(); err != nil {
		return true, err
	}
	if owned == 0 {
		// The sweeper already recovered this job as stalled.
		q.log.Warn("Job finished after being recovered as stalled", slog.String("job_id", job.ID))
		return true, nil
	}

	if procErr != nil {
		q.fail(context.WithoutCancel(ctx), job, procErr)
	}
	return true, nil
}

func (q *DurableQueue) markActive(ctx context.Context, job Job, raw string) error {
	data, err := json.Marshal(activeJob{Job: job, Raw: raw, StartedAt: q.now().UTC()})
	if err != nil {
		return err
	}
	return q.client.HSet(ctx, q.activeKey, job.ID, data).Err()
}

// release hands a claimed job back to the front of the wait list.
func (q *DurableQueue) release(ctx context.Context, raw string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey, 1, raw)
		pipe.RPush(ctx, q.waitKey, raw)
		return nil
	})
	return err
}

// fail retries a job while attempts remain and moves it to the failed list
// otherwise.
func (q *DurableQueue) fail(ctx context.Context, job Job, cause error) {
	log := q.log.With(slog.String("job_id", job.ID), slog.Int64("link_id", job.Event.LinkID))

	if job.Attempts < q.cfg.MaxRetries {
		job.Attempts++
		if err := q.push(ctx, job); err != nil {
			log.Error("Failed to requeue job", slog.String("error", err.Error()))
			return
		}
		log.Warn("Job failed, retrying", slog.Int("attempt", job.Attempts), slog.String("error", cause.Error()))
		return
	}

	log.Error("Job failed, giving up", slog.Int("attempts", job.Attempts), slog.String("error", cause.Error()))

	data, err := json.Marshal(failedJob{Job: job, Error: cause.Error(), FailedAt: q.now().UTC()})
	if err != nil {
		return
	}
	if err := q.client.LPush(ctx, q.failedKey, data).Err(); err != nil {
		log.Error("Failed to record failed job", slog.String("error", err.Error()))
	}
}

// Sweep recovers jobs that have been active longer than the stall timeout,
// returns orphaned claims to the wait list and trims the failed list.
// A stalled job is retried while attempts remain, then marked failed.
func (q *DurableQueue) Sweep(ctx context.Context) error {
	if err := q.sweepStalled(ctx); err != nil {
		return err
	}
	if err := q.sweepOrphans(ctx); err != nil {
		return err
	}
	return q.client.LTrim(ctx, q.failedKey, 0, q.cfg.FailedLimit-1).Err()
}

func (q *DurableQueue) sweepStalled(ctx context.Context) error {
	entries, err := q.client.HGetAll(ctx, q.activeKey).Result()
	if err != nil {
		return err
	}

	cutoff := q.now().UTC().Add(-q.cfg.StallTimeout)
	for id, raw := range entries {
		var active activeJob
		if err := json.Unmarshal([]byte(raw), &active); err != nil {
			q.client.HDel(ctx, q.activeKey, id)
			continue
		}
		if active.StartedAt.After(cutoff) {
			continue
		}

		owned, err := q.client.HDel(ctx, q.activeKey, id).Result()
		if err != nil {
			return err
		}
		if owned == 0 {
			continue
		}
		if active.Raw != "" {
			if err := q.client.LRem(ctx, q.processingKey, 1, active.Raw).Err(); err != nil {
				return err
			}
		}
		q.fail(ctx, active.Job, errors.New("job stalled"))
	}
	return nil
}

// sweepOrphans requeues claims that have had no active record for two
// consecutive sweeps, which happens when a worker dies between claiming a job
// and recording it.
func (q *DurableQueue) sweepOrphans(ctx context.Context) error {
	claimed, err := q.client.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return err
	}

	q.orphanMu.Lock()
	defer q.orphanMu.Unlock()

	seen := make(map[string]struct{})
	for _, raw := range claimed {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.client.LRem(ctx, q.processingKey, 1, raw)
			continue
		}

		active, err := q.client.HExists(ctx, q.activeKey, job.ID).Result()
		if err != nil {
			return err
		}
		if active {
			continue
		}

		if _, ok := q.orphans[raw]; !ok {
			seen[raw] = struct{}{}
			continue
		}
		if err := q.release(ctx, raw); err != nil {
			return err
		}
		q.log.Warn("Requeued orphaned job", slog.String("job_id", job.ID))
	}
	q.orphans = seen
	return nil
}

type QueueStats struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Failed  int64 `json:"failed"`
}

func (q *DurableQueue) Stats(ctx context.Context) (QueueStats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, q.waitKey)
	active := pipe.HLen(ctx, q.activeKey)
	failed := pipe.LLen(ctx, q.failedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return QueueStats{}, err
	}
	return QueueStats{Waiting: waiting.Val(), Active: active.Val(), Failed: failed.Val()}, nil
}
