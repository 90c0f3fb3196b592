// Package memory holds in-process stores for single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

// sweepInterval bounds how long idle (rule, IP) entries are kept.
const sweepInterval = time.Minute

type hitLog struct {
	hits   []time.Time
	window time.Duration
}

// prune drops hits at least one window old. Hits are appended in order.
func (l *hitLog) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.hits) && !l.hits[i].After(cutoff) {
		i++
	}
	l.hits = l.hits[i:]
}

// RateLimitStore keeps a sliding-window hit log and a block deadline per
// (rule, IP) in process memory.
type RateLimitStore struct {
	mu        sync.Mutex
	logs      map[string]*hitLog
	blocked   map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		logs:    make(map[string]*hitLog),
		blocked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func rateKey(ruleID int64, ip string) string {
	return fmt.Sprintf("%d:%s", ruleID, ip)
}

func normalizeWindow(window time.Duration) time.Duration {
	if window <= 0 {
		return time.Minute
	}
	return window
}

// state must be called with mu held.
func (s *RateLimitStore) state(key string, now time.Time) domain.RateLimitState {
	var state domain.RateLimitState
	if l, ok := s.logs[key]; ok {
		state.Count = len(l.hits)
	}
	if until, ok := s.blocked[key]; ok {
		if now.Before(until) {
			state.BlockedUntil = &until
		} else {
			delete(s.blocked, key)
		}
	}
	return state
}

// sweep must be called with mu held.
func (s *RateLimitStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now

	for key, l := range s.logs {
		l.prune(now)
		if len(l.hits) == 0 {
			delete(s.logs, key)
		}
	}
	for key, until := range s.blocked {
		if !now.Before(until) {
			delete(s.blocked, key)
		}
	}
}

func (s *RateLimitStore) GetOrCreate(_ context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error) {
	key := rateKey(ruleID, ip)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.logs[key]; ok {
		l.window = normalizeWindow(window)
		l.prune(now)
	}
	return s.state(key, now), nil
}

func (s *RateLimitStore) RecordHit(_ context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error) {
	key := rateKey(ruleID, ip)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	l, ok := s.logs[key]
	if !ok {
		l = &hitLog{}
		s.logs[key] = l
	}
	l.window = normalizeWindow(window)
	l.prune(now)
	l.hits = append(l.hits, now)

	return s.state(key, now), nil
}

func (s *RateLimitStore) Block(_ context.Context, ruleID int64, ip string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[rateKey(ruleID, ip)] = until
	return nil
}
