package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// hitScript records a hit in the sliding-window log and returns the number
// of hits within the window together with the block deadline in unix
// milliseconds (0 when not blocked). Hits exactly one window old have left.
// ARGV holds now, the cutoff and the window in milliseconds, then a unique
// member for this hit.
var hitScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
local count = redis.call("ZCARD", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
local blocked = redis.call("GET", KEYS[2])
if not blocked then
    blocked = 0
end
return {count, tonumber(blocked)}
`)

// RateLimitStore keeps a sliding-window hit log and a block deadline per
// (rule, IP) in Redis, shared by every instance.
type RateLimitStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimitStore(client *redis.Client) *RateLimitStore {
	return &RateLimitStore{client: client, now: time.Now}
}

func rateKeys(ruleID int64, ip string) (hits, blocked string) {
	base := fmt.Sprintf("ratelimit:%d:%s", ruleID, ip)
	return base + ":hits", base + ":blocked"
}

func toState(count int64, blockedMs int64) domain.RateLimitState {
	state := domain.RateLimitState{Count: int(count)}
	if blockedMs > 0 {
		until := time.UnixMilli(blockedMs).UTC()
		state.BlockedUntil = &until
	}
	return state
}

func windowMs(window time.Duration) int64 {
	if window <= 0 {
		window = time.Minute
	}
	return window.Milliseconds()
}

func (s *RateLimitStore) GetOrCreate(ctx context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error) {
	hitsKey, blockedKey := rateKeys(ruleID, ip)
	since := s.now().UnixMilli() - windowMs(window)

	pipe := s.client.Pipeline()
	count := pipe.ZCount(ctx, hitsKey, "("+strconv.FormatInt(since, 10), "+inf")
	blocked := pipe.Get(ctx, blockedKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.RateLimitState{}, err
	}

	var blockedMs int64
	if v, err := blocked.Result(); err == nil {
		blockedMs, _ = strconv.ParseInt(v, 10, 64)
	}
	return toState(count.Val(), blockedMs), nil
}

func (s *RateLimitStore) RecordHit(ctx context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error) {
	hitsKey, blockedKey := rateKeys(ruleID, ip)
	now := s.now().UnixMilli()
	win := windowMs(window)
	member := strconv.FormatInt(now, 10) + ":" + uuid.NewString()

	res, err := hitScript.Run(ctx, s.client, []string{hitsKey, blockedKey}, now, now-win, win, member).Int64Slice()
	if err != nil {
		return domain.RateLimitState{}, fmt.Errorf("rate limit hit script: %w", err)
	}
	return toState(res[0], res[1]), nil
}

func (s *RateLimitStore) Block(ctx context.Context, ruleID int64, ip string, until time.Time) error {
	_, blockedKey := rateKeys(ruleID, ip)

	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, blockedKey, until.UnixMilli(), ttl).Err()
}
