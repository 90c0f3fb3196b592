package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/quota"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const linkColumns = `
	l.id, l.user_id, l.domain_id, l.address, l.target, l.description, l.banned, l.password,
	l.expire_in, l.visit_count, l.max_clicks, l.click_limit_period, l.click_count_period,
	l.click_period_start, l.redirect_type, l.enable_analytics, l.ip_restriction_enabled,
	l.geo_restriction_enabled, l.rate_limit_enabled, l.smart_redirect_enabled,
	l.utm_campaign, l.utm_source, l.utm_medium, l.created_at, l.updated_at`

type LinkRepository struct {
	db *pgxpool.Pool
}

func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

func scanLink(row pgx.Row) (*domain.Link, error) {
	var link domain.Link
	var period string

	err := row.Scan(
		&link.ID,
		&link.UserID,
		&link.DomainID,
		&link.Address,
		&link.Target,
		&link.Description,
		&link.Banned,
		&link.Password,
		&link.ExpireIn,
		&link.VisitCount,
		&link.MaxClicks,
		&period,
		&link.ClickCountPeriod,
		&link.ClickPeriodStart,
		&link.RedirectType,
		&link.EnableAnalytics,
		&link.IPRestrictionEnabled,
		&link.GeoRestrictionEnabled,
		&link.RateLimitEnabled,
		&link.SmartRedirectEnabled,
		&link.UTMCampaign,
		&link.UTMSource,
		&link.UTMMedium,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}

	link.ClickLimitPeriod = domain.ClickLimitPeriod(period)
	return &link, nil
}

func (r *LinkRepository) Create(ctx context.Context, link *domain.Link) error {
	period := link.ClickLimitPeriod
	if period == "" {
		period = domain.PeriodTotal
	}

	query := `
		INSERT INTO links (
			user_id, domain_id, address, target, description, banned, password, expire_in,
			max_clicks, click_limit_period, redirect_type, enable_analytics,
			ip_restriction_enabled, geo_restriction_enabled, rate_limit_enabled, smart_redirect_enabled,
			utm_campaign, utm_source, utm_medium
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		link.UserID,
		link.DomainID,
		link.Address,
		link.Target,
		link.Description,
		link.Banned,
		link.Password,
		link.ExpireIn,
		link.MaxClicks,
		string(period),
		link.StatusCode(),
		link.EnableAnalytics,
		link.IPRestrictionEnabled,
		link.GeoRestrictionEnabled,
		link.RateLimitEnabled,
		link.SmartRedirectEnabled,
		link.UTMCampaign,
		link.UTMSource,
		link.UTMMedium,
	).Scan(&link.ID, &link.CreatedAt, &link.UpdatedAt)
}

// Find looks a link up by address. An empty domainName selects links on the
// default domain.
func (r *LinkRepository) Find(ctx context.Context, address, domainName string) (*domain.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links l
		LEFT JOIN domains d ON d.id = l.domain_id
		WHERE l.address = $1
		AND (($2 = '' AND l.domain_id IS NULL) OR d.address = $2)
	`
	return scanLink(r.db.QueryRow(ctx, query, address, domainName))
}

func (r *LinkRepository) FindByID(ctx context.Context, id int64) (*domain.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links l WHERE l.id = $1`
	return scanLink(r.db.QueryRow(ctx, query, id))
}

func (r *LinkRepository) Update(ctx context.Context, linkID int64, update domain.LinkUpdate) (*domain.Link, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{linkID}

	if update.ClickCountPeriod != nil {
		args = append(args, *update.ClickCountPeriod)
		sets = append(sets, fmt.Sprintf("click_count_period = $%d", len(args)))
	}
	if update.ClickPeriodStart != nil {
		args = append(args, *update.ClickPeriodStart)
		sets = append(sets, fmt.Sprintf("click_period_start = $%d", len(args)))
	}
	if update.Banned != nil {
		args = append(args, *update.Banned)
		sets = append(sets, fmt.Sprintf("banned = $%d", len(args)))
	}

	query := `UPDATE links AS l SET ` + strings.Join(sets, ", ") + ` WHERE l.id = $1 RETURNING ` + linkColumns
	return scanLink(r.db.QueryRow(ctx, query, args...))
}

func (r *LinkRepository) IncrementVisit(ctx context.Context, linkID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE links SET visit_count = visit_count + 1 WHERE id = $1`, linkID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

// ClaimClick applies one click to the link's period counter in a single
// conditional UPDATE. No returned row means the quota is exhausted.
func (r *LinkRepository) ClaimClick(ctx context.Context, linkID int64, limit quota.Limit, now time.Time) (quota.Result, error) {
	now = now.UTC().Truncate(time.Microsecond)

	var row pgx.Row
	dur, periodic := limit.Period.Duration()
	if periodic {
		query := `
			UPDATE links SET
				click_count_period = CASE
					WHEN click_period_start IS NULL OR click_period_start <= $3 THEN 1
					ELSE click_count_period + 1
				END,
				click_period_start = CASE
					WHEN click_period_start IS NULL OR click_period_start <= $3 THEN $4
					ELSE click_period_start
				END,
				updated_at = NOW()
			WHERE id = $1
			AND (click_period_start IS NULL OR click_period_start <= $3 OR click_count_period < $2)
			RETURNING click_count_period, click_period_start
		`
		row = r.db.QueryRow(ctx, query, linkID, limit.Max, now.Add(-dur), now)
	} else {
		query := `
			UPDATE links SET click_count_period = click_count_period + 1, updated_at = NOW()
			WHERE id = $1 AND click_count_period < $2
			RETURNING click_count_period, click_period_start
		`
		row = r.db.QueryRow(ctx, query, linkID, limit.Max)
	}

	var count int
	var start *time.Time
	err := row.Scan(&count, &start)
	if err == nil {
		reset := periodic && start != nil && start.Equal(now)
		return quota.Result{Status: quota.StatusWithinLimit, Allowed: true, Reset: reset, Count: count, Start: start}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return quota.Result{}, fmt.Errorf("claim click: %w", err)
	}

	err = r.db.QueryRow(ctx, `SELECT click_count_period, click_period_start FROM links WHERE id = $1`, linkID).Scan(&count, &start)
	if errors.Is(err, pgx.ErrNoRows) {
		return quota.Result{}, domain.ErrLinkNotFound
	}
	if err != nil {
		return quota.Result{}, fmt.Errorf("read click counter: %w", err)
	}
	return quota.Result{Status: quota.StatusLimitReached, Count: count, Start: start}, nil
}
