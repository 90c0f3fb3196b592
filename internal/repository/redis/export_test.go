package redis

import "time"

func (s *RateLimitStore) SetClock(now func() time.Time) {
	s.now = now
}
