package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/redis/go-redis/v9"
)

// cachedLink carries the password hash, which domain.Link keeps out of JSON.
type cachedLink struct {
	*domain.Link
	Password string `json:"password"`
}

type LinkCache struct {
	client *redis.Client
}

func NewLinkCache(client *redis.Client) *LinkCache {
	return &LinkCache{client: client}
}

func linkKey(address, domainName string) string {
	return fmt.Sprintf("link:%s/%s", domainName, address)
}

func linkIndexKey(id int64) string {
	return fmt.Sprintf("link:id:%d", id)
}

// GetLink returns redis.Nil on a cache miss.
func (c *LinkCache) GetLink(ctx context.Context, address, domainName string) (*domain.Link, error) {
	data, err := c.client.Get(ctx, linkKey(address, domainName)).Result()
	if err != nil {
		return nil, err
	}

	cached := cachedLink{Link: &domain.Link{}}
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		return nil, err
	}
	cached.Link.Password = cached.Password

	return cached.Link, nil
}

func (c *LinkCache) SetLink(ctx context.Context, link *domain.Link, domainName string, ttl time.Duration) error {
	data, err := json.Marshal(cachedLink{Link: link, Password: link.Password})
	if err != nil {
		return err
	}

	key := linkKey(link.Address, domainName)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.Set(ctx, linkIndexKey(link.ID), key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate drops the cached copy of a link, whatever address it was
// cached under.
func (c *LinkCache) Invalidate(ctx context.Context, linkID int64) error {
	key, err := c.client.Get(ctx, linkIndexKey(linkID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.client.Del(ctx, key, linkIndexKey(linkID)).Err()
}

type LinkSource interface {
	Find(ctx context.Context, address, domainName string) (*domain.Link, error)
	Update(ctx context.Context, linkID int64, update domain.LinkUpdate) (*domain.Link, error)
	IncrementVisit(ctx context.Context, linkID int64) error
}

// CachedLinkStore serves link lookups from Redis and falls back to the
// source. Cache failures never fail a lookup.
type CachedLinkStore struct {
	source LinkSource
	cache  *LinkCache
	ttl    time.Duration
}

func NewCachedLinkStore(source LinkSource, cache *LinkCache, ttl time.Duration) *CachedLinkStore {
	return &CachedLinkStore{source: source, cache: cache, ttl: ttl}
}

func (s *CachedLinkStore) Find(ctx context.Context, address, domainName string) (*domain.Link, error) {
	log := logger.FromContext(ctx)

	link, err := s.cache.GetLink(ctx, address, domainName)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn("Link cache read failed", slog.String("address", address), slog.String("error", err.Error()))
	}

	link, err = s.source.Find(ctx, address, domainName)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetLink(ctx, link, domainName, s.ttl); err != nil {
		log.Warn("Link cache write failed", slog.String("address", address), slog.String("error", err.Error()))
	}
	return link, nil
}

func (s *CachedLinkStore) Update(ctx context.Context, linkID int64, update domain.LinkUpdate) (*domain.Link, error) {
	link, err := s.source.Update(ctx, linkID, update)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, linkID); err != nil {
		logger.FromContext(ctx).Warn("Link cache invalidation failed", slog.Int64("link_id", linkID), slog.String("error", err.Error()))
	}
	return link, nil
}

func (s *CachedLinkStore) IncrementVisit(ctx context.Context, linkID int64) error {
	return s.source.IncrementVisit(ctx, linkID)
}
