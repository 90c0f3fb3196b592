package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockBucketWriter struct {
	mock.Mock
}

func (m *MockBucketWriter) Record(ctx context.Context, linkID int64, at time.Time, browser, os, country, referrer string) error {
	args := m.Called(ctx, linkID, at, browser, os, country, referrer)
	return args.Error(0)
}

type MockDetailWriter struct {
	mock.Mock
}

func (m *MockDetailWriter) Insert(ctx context.Context, detail *domain.VisitDetail) error {
	args := m.Called(ctx, detail)
	return args.Error(0)
}

// RecordingQueue keeps every enqueued event in memory.
type RecordingQueue struct {
	mu     sync.Mutex
	events []domain.VisitEvent
}

func (q *RecordingQueue) Enqueue(_ context.Context, event domain.VisitEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
}

func (q *RecordingQueue) Start(context.Context) {}

func (q *RecordingQueue) Close() error { return nil }

func (q *RecordingQueue) Events() []domain.VisitEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.VisitEvent(nil), q.events...)
}
