package visit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/devhappys/kutt-sub000/internal/policy"
	"github.com/devhappys/kutt-sub000/pkg/detector"
	"github.com/devhappys/kutt-sub000/pkg/geo"
)

type LinkCounter interface {
	IncrementVisit(ctx context.Context, linkID int64) error
}

type BucketWriter interface {
	Record(ctx context.Context, linkID int64, at time.Time, browser, os, country, referrer string) error
}

type DetailWriter interface {
	Insert(ctx context.Context, detail *domain.VisitDetail) error
}

// Steps records which writes of a visit have already been applied, so a
// retried job does not count twice in the stores that succeeded.
type Steps uint8

const (
	StepVisitCount Steps = 1 << iota
	StepBucket
	StepDetail

	AllSteps = StepVisitCount | StepBucket | StepDetail
)

func (s Steps) Has(step Steps) bool {
	return s&step != 0
}

type Handler interface {
	ProcessSteps(ctx context.Context, event domain.VisitEvent, done Steps) (Steps, error)
}

type Processor struct {
	links   LinkCounter
	buckets BucketWriter
	details DetailWriter
	locator geo.Locator
}

func NewProcessor(links LinkCounter, buckets BucketWriter, details DetailWriter, locator geo.Locator) *Processor {
	if locator == nil {
		locator = geo.NopLocator{}
	}
	return &Processor{
		links:   links,
		buckets: buckets,
		details: details,
		locator: locator,
	}
}

func (p *Processor) Process(ctx context.Context, event domain.VisitEvent) error {
	_, err := p.ProcessSteps(ctx, event, 0)
	return err
}

// ProcessSteps applies every write not yet marked in done and returns the
// updated mask. Failures are joined so one store failing never hides the
// other.
func (p *Processor) ProcessSteps(ctx context.Context, event domain.VisitEvent, done Steps) (Steps, error) {
	log := logger.FromContext(ctx).With(slog.Int64("link_id", event.LinkID))

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	detail := p.Describe(event)

	var errs []error

	if !done.Has(StepVisitCount) {
		if err := p.links.IncrementVisit(ctx, event.LinkID); err != nil {
			log.Error("Failed to increment visit count", slog.String("error", err.Error()))
			errs = append(errs, domain.NewTransientStoreError("increment visit count", err))
		} else {
			done |= StepVisitCount
		}
	}

	if !done.Has(StepBucket) {
		err := p.buckets.Record(ctx, event.LinkID, event.OccurredAt,
			detector.BrowserFamily(event.UserAgent),
			detector.OSFamily(event.UserAgent),
			detail.Country,
			DisplayReferrer(event.Referrer),
		)
		if err != nil {
			log.Error("Failed to record visit bucket", slog.String("error", err.Error()))
			errs = append(errs, domain.NewTransientStoreError("record visit bucket", err))
		} else {
			done |= StepBucket
		}
	}

	if !done.Has(StepDetail) {
		if err := p.details.Insert(ctx, detail); err != nil {
			log.Error("Failed to insert visit detail", slog.String("error", err.Error()))
			errs = append(errs, domain.NewTransientStoreError("insert visit detail", err))
		} else {
			done |= StepDetail
		}
	}

	return done, errors.Join(errs...)
}

// Describe decomposes an event into its detail record. Geo lookup failures
// leave the location empty.
func (p *Processor) Describe(event domain.VisitEvent) *domain.VisitDetail {
	agent := detector.Parse(event.UserAgent)
	utm := ExtractUTM(event.Referrer)

	detail := &domain.VisitDetail{
		LinkID:         event.LinkID,
		UserID:         event.UserID,
		IP:             event.IP,
		Browser:        agent.BrowserFamily,
		BrowserVersion: agent.BrowserVersion,
		OS:             agent.OSFamily,
		OSVersion:      agent.OSVersion,
		DeviceType:     agent.DeviceType,
		DeviceBrand:    agent.DeviceBrand,
		DeviceModel:    agent.DeviceModel,
		Referrer:       event.Referrer,
		ReferrerDomain: ReferrerDomain(event.Referrer),
		UTMSource:      utm.Source,
		UTMMedium:      utm.Medium,
		UTMCampaign:    utm.Campaign,
		UTMTerm:        utm.Term,
		UTMContent:     utm.Content,
		Language:       policy.PrimaryLanguage(event.AcceptLanguage),
		IsBot:          agent.Bot,
		CreatedAt:      event.OccurredAt,
	}

	loc, err := p.locator.Lookup(event.IP)
	if err != nil {
		logger.Get().Warn("Geo lookup failed", slog.String("ip", event.IP), slog.String("error", err.Error()))
	}
	if loc != nil {
		detail.Country = loc.Country
		detail.City = loc.City
		detail.Region = loc.Region
	}
	if detail.Country == "" {
		detail.Country = event.CountryHint
	}

	return detail
}
