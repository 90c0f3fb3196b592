// Package redirect resolves a public short-link hit into a verdict: where the
// visitor goes, or why they may not.
package redirect

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/devhappys/kutt-sub000/internal/policy"
	"github.com/devhappys/kutt-sub000/internal/quota"
	"github.com/devhappys/kutt-sub000/internal/visit"
	"github.com/devhappys/kutt-sub000/pkg/detector"
	"github.com/devhappys/kutt-sub000/pkg/geo"
	"golang.org/x/crypto/bcrypt"
)

type LinkStore interface {
	Find(ctx context.Context, address, domainName string) (*domain.Link, error)
	Update(ctx context.Context, linkID int64, update domain.LinkUpdate) (*domain.Link, error)
	IncrementVisit(ctx context.Context, linkID int64) error
}

type RuleStore interface {
	ListIPRules(ctx context.Context, linkID int64, userID *int64) ([]domain.IPRule, error)
	ListGeoRestrictions(ctx context.Context, linkID int64) ([]domain.GeoRestriction, error)
	ListRateLimitRules(ctx context.Context, linkID int64, userID *int64) ([]domain.RateLimitRule, error)
	ListRedirectRules(ctx context.Context, linkID int64) ([]domain.RedirectRule, error)
}

type RateLimitStore interface {
	GetOrCreate(ctx context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error)
	RecordHit(ctx context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error)
	Block(ctx context.Context, ruleID int64, ip string, until time.Time) error
}

type QuotaChecker interface {
	Check(ctx context.Context, link *domain.Link) (quota.Result, error)
	Peek(link *domain.Link) quota.Result
}

type Options struct {
	BannedURL       string
	NotFoundURL     string
	DecisionTimeout time.Duration
}

type Resolver struct {
	links   LinkStore
	rules   RuleStore
	limits  RateLimitStore
	quota   QuotaChecker
	queue   visit.Queue
	locator geo.Locator
	opts    Options
	now     func() time.Time
}

func NewResolver(links LinkStore, rules RuleStore, limits RateLimitStore, quota QuotaChecker, queue visit.Queue, locator geo.Locator, opts Options) *Resolver {
	if locator == nil {
		locator = geo.NopLocator{}
	}
	if opts.DecisionTimeout <= 0 {
		opts.DecisionTimeout = 3 * time.Second
	}
	return &Resolver{
		links:   links,
		rules:   rules,
		limits:  limits,
		quota:   quota,
		queue:   queue,
		locator: locator,
		opts:    opts,
		now:     time.Now,
	}
}

func unavailable(reason string) *domain.Outcome {
	return &domain.Outcome{Kind: domain.OutcomeDeny, StatusCode: http.StatusServiceUnavailable, Reason: reason}
}

func gone(reason string) *domain.Outcome {
	return &domain.Outcome{Kind: domain.OutcomeGone, StatusCode: http.StatusGone, Reason: reason}
}

// Resolve runs the full pipeline for a public hit. Steps run strictly in
// order and the first blocking outcome ends the pipeline.
func (r *Resolver) Resolve(ctx context.Context, address, domainName string, req domain.RequestContext) (*domain.Outcome, error) {
	log := logger.FromContext(ctx).With(slog.String("address", address))
	if req.Now.IsZero() {
		req.Now = r.now()
	}

	link, outcome := r.lookup(ctx, address, domainName, req.Now)
	if outcome != nil {
		return outcome, nil
	}
	log = log.With(slog.Int64("link_id", link.ID))

	if req.Info && !link.HasPassword() {
		return &domain.Outcome{Kind: domain.OutcomeInfo, StatusCode: http.StatusOK, URL: link.Target, Link: link}, nil
	}

	decideCtx, cancel := context.WithTimeout(ctx, r.opts.DecisionTimeout)
	defer cancel()

	agent := detector.Parse(req.UserAgent)
	visitor := r.visitor(req, agent)

	denied, override, err := r.checkPolicies(decideCtx, link, visitor)
	if err != nil {
		log.Error("Policy evaluation failed, denying", slog.String("error", err.Error()))
		return unavailable("access policy could not be evaluated"), nil
	}
	if denied != nil {
		log.Info("Visit denied by policy", slog.String("policy", denied.Policy), slog.String("reason", denied.Reason))
		return domain.DeniedOutcome(denied), nil
	}

	target := link.Target
	if override != "" {
		target = override
	}

	if link.HasPassword() {
		// The password entry point consumes the quota once verified.
		if !r.quota.Peek(link).Allowed {
			return gone(domain.ErrQuotaExceeded.Error()), nil
		}
		return &domain.Outcome{Kind: domain.OutcomePasswordRequired, StatusCode: http.StatusUnauthorized, Reason: domain.ErrPasswordRequired.Error(), Link: link}, nil
	}

	res, err := r.quota.Check(decideCtx, link)
	if err != nil {
		log.Error("Click quota check failed, denying", slog.String("error", err.Error()))
		return unavailable("click quota could not be checked"), nil
	}
	if !res.Allowed {
		log.Info("Click limit reached", slog.String("period", string(link.ClickLimitPeriod)))
		return gone(domain.ErrQuotaExceeded.Error()), nil
	}

	return r.complete(ctx, link, target, req, agent), nil
}

// ResolveWithPassword is the verified entry point for protected links. The
// access policies run again before the password is checked, so denied
// callers learn nothing and guesses count against rate limits. The click
// quota is consumed only once the password matches.
func (r *Resolver) ResolveWithPassword(ctx context.Context, address, domainName string, req domain.RequestContext, password string) (*domain.Outcome, error) {
	log := logger.FromContext(ctx).With(slog.String("address", address))
	if req.Now.IsZero() {
		req.Now = r.now()
	}

	link, outcome := r.lookup(ctx, address, domainName, req.Now)
	if outcome != nil {
		return outcome, nil
	}
	if !link.HasPassword() {
		return r.Resolve(ctx, address, domainName, req)
	}
	log = log.With(slog.Int64("link_id", link.ID))

	decideCtx, cancel := context.WithTimeout(ctx, r.opts.DecisionTimeout)
	defer cancel()

	agent := detector.Parse(req.UserAgent)
	denied, override, err := r.checkPolicies(decideCtx, link, r.visitor(req, agent))
	if err != nil {
		log.Error("Policy evaluation failed, denying", slog.String("error", err.Error()))
		return unavailable("access policy could not be evaluated"), nil
	}
	if denied != nil {
		log.Info("Password attempt denied by policy", slog.String("policy", denied.Policy), slog.String("reason", denied.Reason))
		return domain.DeniedOutcome(denied), nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(link.Password), []byte(password)); err != nil {
		return &domain.Outcome{Kind: domain.OutcomeDeny, StatusCode: http.StatusUnauthorized, Reason: domain.ErrInvalidPassword.Error()}, nil
	}

	res, err := r.quota.Check(decideCtx, link)
	if err != nil {
		log.Error("Click quota check failed, denying", slog.String("error", err.Error()))
		return unavailable("click quota could not be checked"), nil
	}
	if !res.Allowed {
		return gone(domain.ErrQuotaExceeded.Error()), nil
	}

	target := link.Target
	if override != "" {
		target = override
	}
	return r.complete(ctx, link, target, req, agent), nil
}

func (r *Resolver) lookup(ctx context.Context, address, domainName string, now time.Time) (*domain.Link, *domain.Outcome) {
	link, err := r.links.Find(ctx, address, domainName)
	if errors.Is(err, domain.ErrLinkNotFound) || (err == nil && link == nil) {
		return nil, &domain.Outcome{Kind: domain.OutcomeNotFound, StatusCode: http.StatusNotFound, URL: r.opts.NotFoundURL}
	}
	if err != nil {
		logger.FromContext(ctx).Error("Link lookup failed", slog.String("address", address), slog.String("error", err.Error()))
		return nil, unavailable("link could not be loaded")
	}
	if link.Banned {
		return nil, &domain.Outcome{Kind: domain.OutcomeRedirect, StatusCode: http.StatusFound, URL: r.opts.BannedURL, Reason: "link banned"}
	}
	if link.IsExpired(now) {
		return nil, gone("link expired")
	}
	return link, nil
}

// complete builds the final URL, queues the visit and issues the redirect.
func (r *Resolver) complete(ctx context.Context, link *domain.Link, target string, req domain.RequestContext, agent detector.Agent) *domain.Outcome {
	final, err := BuildTargetURL(target, link)
	if err != nil {
		logger.FromContext(ctx).Warn("Skipping UTM parameters", slog.Int64("link_id", link.ID), slog.String("error", err.Error()))
	}

	if link.EnableAnalytics && !agent.Bot && r.queue != nil {
		r.queue.Enqueue(ctx, domain.VisitEvent{
			LinkID:         link.ID,
			UserID:         link.UserID,
			UserAgent:      req.UserAgent,
			IP:             req.IP,
			CountryHint:    req.CountryHint,
			Referrer:       req.Referrer,
			AcceptLanguage: req.AcceptLanguage,
			OccurredAt:     req.Now.UTC(),
		})
	}

	return &domain.Outcome{Kind: domain.OutcomeRedirect, URL: final, StatusCode: link.StatusCode(), Link: link}
}

func (r *Resolver) visitor(req domain.RequestContext, agent detector.Agent) policy.Visitor {
	v := policy.Visitor{
		IP:         req.IP,
		DeviceType: agent.DeviceType,
		Browser:    agent.BrowserFamily,
		OS:         agent.OSFamily,
		Language:   policy.PrimaryLanguage(req.AcceptLanguage),
		Referrer:   req.Referrer,
		Now:        req.Now,
		Country:    req.CountryHint,
	}

	loc, err := r.locator.Lookup(req.IP)
	if err != nil {
		logger.Get().Warn("Geo lookup failed", slog.String("ip", req.IP), slog.String("error", err.Error()))
	}
	if loc != nil {
		v.Country = loc.Country
		v.Region = loc.Region
		v.City = loc.City
	}
	return v
}

// checkPolicies runs IP, geo, rate-limit and smart-redirect evaluation in that
// order. Lookup failures of the first three fail closed through the returned
// error; smart-redirect failures fail open.
func (r *Resolver) checkPolicies(ctx context.Context, link *domain.Link, v policy.Visitor) (*domain.PolicyDeniedError, string, error) {
	log := logger.FromContext(ctx)

	if link.IPRestrictionEnabled {
		rules, err := r.rules.ListIPRules(ctx, link.ID, link.UserID)
		if err != nil {
			return nil, "", domain.NewTransientStoreError("list ip rules", err)
		}
		if d := policy.CheckIP(v.IP, rules); !d.Allowed {
			return d.Err(), "", nil
		}
	}

	if link.GeoRestrictionEnabled {
		restrictions, err := r.rules.ListGeoRestrictions(ctx, link.ID)
		if err != nil {
			return nil, "", domain.NewTransientStoreError("list geo restrictions", err)
		}
		if d := policy.CheckGeo(v, restrictions); !d.Allowed {
			return d.Err(), "", nil
		}
	}

	if link.RateLimitEnabled {
		denied, err := r.checkRateLimits(ctx, link, v)
		if err != nil {
			return nil, "", err
		}
		if denied != nil {
			return denied, "", nil
		}
	}

	if link.SmartRedirectEnabled {
		rules, err := r.rules.ListRedirectRules(ctx, link.ID)
		if err != nil {
			log.Warn("Smart redirect rules unavailable, using link target", slog.String("error", err.Error()))
			return nil, "", nil
		}
		if target, ok := policy.MatchRedirect(v, rules); ok {
			return nil, target, nil
		}
	}

	return nil, "", nil
}

func (r *Resolver) checkRateLimits(ctx context.Context, link *domain.Link, v policy.Visitor) (*domain.PolicyDeniedError, error) {
	rules, err := r.rules.ListRateLimitRules(ctx, link.ID, link.UserID)
	if err != nil {
		return nil, domain.NewTransientStoreError("list rate limit rules", err)
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}

		state, err := r.limits.GetOrCreate(ctx, rule.ID, v.IP, rule.Window)
		if err != nil {
			return nil, domain.NewTransientStoreError("load rate limit state", err)
		}
		// Blocked callers are turned away without counting the hit.
		if state.BlockedUntil != nil && v.Now.Before(*state.BlockedUntil) {
			return policy.CheckRateLimit(v.Now, rule, state).Err(), nil
		}

		state, err = r.limits.RecordHit(ctx, rule.ID, v.IP, rule.Window)
		if err != nil {
			return nil, domain.NewTransientStoreError("record rate limit hit", err)
		}

		d := policy.CheckRateLimit(v.Now, rule, state)
		if !d.Allowed {
			if d.BlockedUntil != nil {
				if err := r.limits.Block(ctx, rule.ID, v.IP, *d.BlockedUntil); err != nil {
					return nil, domain.NewTransientStoreError("block rate limit violator", err)
				}
			}
			return d.Err(), nil
		}
		if d.Action != "" {
			logger.FromContext(ctx).Info("Rate limit exceeded",
				slog.Int64("rule_id", rule.ID),
				slog.String("action", string(d.Action)),
				slog.String("ip", v.IP),
			)
		}
	}
	return nil, nil
}

