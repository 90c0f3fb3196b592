// Package visit decouples "a visit happened" from "a visit was recorded".
package visit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/logger"
)

// Queue accepts visit events without blocking the caller. Failures to queue
// are logged, never returned.
type Queue interface {
	Enqueue(ctx context.Context, event domain.VisitEvent)
	Start(ctx context.Context)
	Close() error
}

const (
	DefaultInFlightLimit = 100
	DefaultJobTimeout    = 10 * time.Second
)

// InProcessQueue runs each event on its own goroutine and drops events once
// the in-flight ceiling is reached. Failed events are logged and discarded.
type InProcessQueue struct {
	handler    Handler
	limit      int64
	jobTimeout time.Duration

	inFlight atomic.Int64
	dropped  atomic.Int64
	wg       sync.WaitGroup
}

func NewInProcessQueue(handler Handler, limit int, jobTimeout time.Duration) *InProcessQueue {
	if limit <= 0 {
		limit = DefaultInFlightLimit
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	return &InProcessQueue{
		handler:    handler,
		limit:      int64(limit),
		jobTimeout: jobTimeout,
	}
}

func (q *InProcessQueue) Enqueue(ctx context.Context, event domain.VisitEvent) {
	log := logger.FromContext(ctx)

	if q.inFlight.Add(1) > q.limit {
		q.inFlight.Add(-1)
		q.dropped.Add(1)
		log.Warn("Visit dropped, too many in flight",
			slog.Int64("link_id", event.LinkID),
			slog.Int64("limit", q.limit),
		)
		return
	}

	// The request context is cancelled as soon as the redirect is written.
	jobCtx := context.WithoutCancel(ctx)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.inFlight.Add(-1)

		ctx, cancel := context.WithTimeout(jobCtx, q.jobTimeout)
		defer cancel()

		if _, err := q.handler.ProcessSteps(ctx, event, 0); err != nil {
			log.Error("Visit processing failed, event discarded",
				slog.Int64("link_id", event.LinkID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (q *InProcessQueue) Start(context.Context) {}

// Close waits for in-flight events to finish.
func (q *InProcessQueue) Close() error {
	q.wg.Wait()
	return nil
}

func (q *InProcessQueue) InFlight() int64 {
	return q.inFlight.Load()
}

func (q *InProcessQueue) Dropped() int64 {
	return q.dropped.Load()
}
