package stats

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/export"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"golang.org/x/sync/singleflight"
)

type LinkReader interface {
	FindByID(ctx context.Context, id int64) (*domain.Link, error)
}

type BucketReader interface {
	Stream(ctx context.Context, linkID int64, since time.Time, fn func(*domain.Bucket) error) error
}

type VisitReader interface {
	Query(ctx context.Context, linkID int64, filter domain.VisitFilter, page domain.Pagination) (*domain.VisitPage, error)
	Each(ctx context.Context, linkID int64, filter domain.VisitFilter, fn func(domain.VisitDetail) error) error
	Heatmap(ctx context.Context, linkID int64, days int) (*domain.Heatmap, error)
	UTMBreakdown(ctx context.Context, linkID int64) (*domain.UTMBreakdown, error)
	DeviceBreakdown(ctx context.Context, linkID int64) (*domain.DeviceBreakdown, error)
	ActiveVisitors(ctx context.Context, linkID int64, minutes int) (*domain.ActiveVisitors, error)
	FunnelCounts(ctx context.Context, linkIDs []int64) ([]domain.FunnelCount, error)
}

type Cache interface {
	GetStats(ctx context.Context, linkID int64) (*domain.LinkStats, error)
	SetStats(ctx context.Context, stats *domain.LinkStats, ttl time.Duration) error
}

const (
	DefaultCacheTTL    = 30 * time.Second
	DefaultHeatmapDays = 30
	MaxHeatmapDays     = 365
	DefaultActiveMins  = 5
	MaxActiveMins      = 60
)

type Service struct {
	links   LinkReader
	buckets BucketReader
	visits  VisitReader
	cache   Cache
	ttl     time.Duration

	group singleflight.Group
	now   func() time.Time
}

func NewService(links LinkReader, buckets BucketReader, visits VisitReader, cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		links:   links,
		buckets: buckets,
		visits:  visits,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the multi-period stats of a link. Results are cached briefly and
// concurrent rebuilds of the same link share one computation.
func (s *Service) Get(ctx context.Context, linkID int64) (*domain.LinkStats, error) {
	log := logger.FromContext(ctx).With(slog.Int64("link_id", linkID))

	if s.cache != nil {
		cached, err := s.cache.GetStats(ctx, linkID)
		if err != nil {
			log.Warn("Stats cache read failed", slog.String("error", err.Error()))
		}
		if cached != nil {
			return cached, nil
		}
	}

	v, err, shared := s.group.Do(strconv.FormatInt(linkID, 10), func() (any, error) {
		return s.build(context.WithoutCancel(ctx), linkID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("Stats build shared with a concurrent request")
	}
	return v.(*domain.LinkStats), nil
}

func (s *Service) build(ctx context.Context, linkID int64) (*domain.LinkStats, error) {
	link, err := s.links.FindByID(ctx, linkID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rollup := NewRollup(now)
	err = s.buckets.Stream(ctx, linkID, now.Add(-Oldest), func(b *domain.Bucket) error {
		rollup.Add(b)
		return nil
	})
	if err != nil {
		return nil, domain.NewTransientStoreError("stream visit buckets", err)
	}

	stats := rollup.Stats(linkID)
	stats.Address = link.Address
	stats.Target = link.Target
	stats.Total = link.VisitCount

	if s.cache != nil {
		if err := s.cache.SetStats(ctx, stats, s.ttl); err != nil {
			logger.FromContext(ctx).Warn("Stats cache write failed", slog.Int64("link_id", linkID), slog.String("error", err.Error()))
		}
	}
	return stats, nil
}

func (s *Service) Visits(ctx context.Context, linkID int64, filter domain.VisitFilter, page domain.Pagination) (*domain.VisitPage, error) {
	if _, err := s.links.FindByID(ctx, linkID); err != nil {
		return nil, err
	}
	return s.visits.Query(ctx, linkID, filter, page)
}

// Export writes every visit matching filter in the given format.
func (s *Service) Export(ctx context.Context, w io.Writer, linkID int64, filter domain.VisitFilter, format string) error {
	link, err := s.links.FindByID(ctx, linkID)
	if err != nil {
		return err
	}

	src := func(fn func(domain.VisitDetail) error) error {
		return s.visits.Each(ctx, linkID, filter, fn)
	}

	if format == export.FormatJSON {
		return export.WriteJSON(w, link, src, s.now())
	}
	return export.WriteCSV(w, src)
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func (s *Service) Heatmap(ctx context.Context, linkID int64, days int) (*domain.Heatmap, error) {
	if _, err := s.links.FindByID(ctx, linkID); err != nil {
		return nil, err
	}
	return s.visits.Heatmap(ctx, linkID, clamp(days, DefaultHeatmapDays, MaxHeatmapDays))
}

func (s *Service) UTM(ctx context.Context, linkID int64) (*domain.UTMBreakdown, error) {
	if _, err := s.links.FindByID(ctx, linkID); err != nil {
		return nil, err
	}
	return s.visits.UTMBreakdown(ctx, linkID)
}

func (s *Service) Devices(ctx context.Context, linkID int64) (*domain.DeviceBreakdown, error) {
	if _, err := s.links.FindByID(ctx, linkID); err != nil {
		return nil, err
	}
	return s.visits.DeviceBreakdown(ctx, linkID)
}

func (s *Service) ActiveVisitors(ctx context.Context, linkID int64, minutes int) (*domain.ActiveVisitors, error) {
	if _, err := s.links.FindByID(ctx, linkID); err != nil {
		return nil, err
	}
	return s.visits.ActiveVisitors(ctx, linkID, clamp(minutes, DefaultActiveMins, MaxActiveMins))
}

func (s *Service) Funnel(ctx context.Context, linkIDs []int64) (*domain.Funnel, error) {
	counts, err := s.visits.FunnelCounts(ctx, linkIDs)
	if err != nil {
		return nil, err
	}
	return BuildFunnel(counts), nil
}

func (s *Service) Compare(ctx context.Context, linkIDs []int64) (*domain.Comparison, error) {
	counts, err := s.visits.FunnelCounts(ctx, linkIDs)
	if err != nil {
		return nil, err
	}
	return Compare(counts), nil
}
