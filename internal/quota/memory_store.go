package quota

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count int
	start *time.Time
}

// MemoryStore keeps click counters in process. It backs tests and single-node
// deployments without Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[int64]*counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[int64]*counter)}
}

// Seed sets the stored counter pair of a link.
func (s *MemoryStore) Seed(linkID int64, count int, start *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[linkID] = &counter{count: count, start: start}
}

func (s *MemoryStore) ClaimClick(_ context.Context, linkID int64, limit Limit, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[linkID]
	if !ok {
		c = &counter{}
		s.counters[linkID] = c
	}

	res := Next(limit, c.count, c.start, now)
	if res.Allowed {
		c.count = res.Count
		c.start = res.Start
	}
	return res, nil
}

func (s *MemoryStore) Count(linkID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[linkID]; ok {
		return c.count
	}
	return 0
}
