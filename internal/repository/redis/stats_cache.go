package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
)

type StatsCache struct {
	client *redis.Client
}

func NewStatsCache(client *redis.Client) *StatsCache {
	return &StatsCache{client: client}
}

func statsKey(linkID int64) string {
	return fmt.Sprintf("stats:%d", linkID)
}

// GetStats returns nil without error on a cache miss.
func (c *StatsCache) GetStats(ctx context.Context, linkID int64) (*domain.LinkStats, error) {
	data, err := c.client.Get(ctx, statsKey(linkID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats domain.LinkStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *StatsCache) SetStats(ctx context.Context, stats *domain.LinkStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey(stats.LinkID), data, ttl).Err()
}
