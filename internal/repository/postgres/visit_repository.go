package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const detailColumns = `
	id, link_id, user_id, ip, country, city, region, browser, browser_version, os, os_version,
	device_type, device_brand, device_model, referrer, referrer_domain,
	utm_source, utm_medium, utm_campaign, utm_term, utm_content, language, is_bot, is_unique, created_at`

// VisitRepository is the append-only per-visit detail store.
type VisitRepository struct {
	db *pgxpool.Pool
}

func NewVisitRepository(db *pgxpool.Pool) *VisitRepository {
	return &VisitRepository{db: db}
}

// Insert appends one detail row. A visit is unique when its IP has not been
// seen on the link before.
func (r *VisitRepository) Insert(ctx context.Context, d *domain.VisitDetail) error {
	query := `
		INSERT INTO visit_details (
			link_id, user_id, ip, country, city, region, browser, browser_version, os, os_version,
			device_type, device_brand, device_model, referrer, referrer_domain,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content, language, is_bot, created_at,
			is_unique
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23,
			NOT EXISTS (SELECT 1 FROM visit_details WHERE link_id = $1 AND ip = $3)
		)
		RETURNING id, is_unique
	`

	deviceType := d.DeviceType
	if deviceType == "" {
		deviceType = "unknown"
	}

	return r.db.QueryRow(ctx, query,
		d.LinkID,
		d.UserID,
		d.IP,
		d.Country,
		d.City,
		d.Region,
		d.Browser,
		d.BrowserVersion,
		d.OS,
		d.OSVersion,
		deviceType,
		d.DeviceBrand,
		d.DeviceModel,
		d.Referrer,
		d.ReferrerDomain,
		d.UTMSource,
		d.UTMMedium,
		d.UTMCampaign,
		d.UTMTerm,
		d.UTMContent,
		d.Language,
		d.IsBot,
		d.CreatedAt,
	).Scan(&d.ID, &d.IsUnique)
}

func scanDetail(row pgx.Row) (domain.VisitDetail, error) {
	var d domain.VisitDetail
	err := row.Scan(
		&d.ID,
		&d.LinkID,
		&d.UserID,
		&d.IP,
		&d.Country,
		&d.City,
		&d.Region,
		&d.Browser,
		&d.BrowserVersion,
		&d.OS,
		&d.OSVersion,
		&d.DeviceType,
		&d.DeviceBrand,
		&d.DeviceModel,
		&d.Referrer,
		&d.ReferrerDomain,
		&d.UTMSource,
		&d.UTMMedium,
		&d.UTMCampaign,
		&d.UTMTerm,
		&d.UTMContent,
		&d.Language,
		&d.IsBot,
		&d.IsUnique,
		&d.CreatedAt,
	)
	return d, err
}

// filterClause renders the WHERE clause of a visit query. Values are always
// bound as parameters.
func filterClause(linkID int64, f domain.VisitFilter) (string, []any) {
	conds := []string{"link_id = $1"}
	args := []any{linkID}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if f.Country != "" {
		add("UPPER(country) = UPPER($%d)", f.Country)
	}
	if f.Browser != "" {
		add("LOWER(browser) = LOWER($%d)", f.Browser)
	}
	if f.OS != "" {
		add("LOWER(os) = LOWER($%d)", f.OS)
	}
	if f.DeviceType != "" {
		add("device_type = $%d", f.DeviceType)
	}
	if f.UTMSource != "" {
		add("utm_source = $%d", f.UTMSource)
	}
	if f.UTMMedium != "" {
		add("utm_medium = $%d", f.UTMMedium)
	}
	if f.UTMCampaign != "" {
		add("utm_campaign = $%d", f.UTMCampaign)
	}
	if f.UTMTerm != "" {
		add("utm_term = $%d", f.UTMTerm)
	}
	if f.UTMContent != "" {
		add("utm_content = $%d", f.UTMContent)
	}
	if f.IsBot != nil {
		add("is_bot = $%d", *f.IsBot)
	}

	return strings.Join(conds, " AND "), args
}

// Query returns one page of matching visits, newest first, with the total
// number of matches.
func (r *VisitRepository) Query(ctx context.Context, linkID int64, filter domain.VisitFilter, page domain.Pagination) (*domain.VisitPage, error) {
	where, args := filterClause(linkID, filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM visit_details WHERE `+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, page.Limit, page.Skip)
	query := fmt.Sprintf(`
		SELECT %s
		FROM visit_details
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, detailColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := make([]domain.VisitDetail, 0, page.Limit)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, d)
	}

	return &domain.VisitPage{
		Visits: visits,
		Total:  total,
		Limit:  page.Limit,
		Skip:   page.Skip,
	}, rows.Err()
}

// Each streams every matching visit, oldest first.
func (r *VisitRepository) Each(ctx context.Context, linkID int64, filter domain.VisitFilter, fn func(domain.VisitDetail) error) error {
	where, args := filterClause(linkID, filter)
	query := `SELECT ` + detailColumns + ` FROM visit_details WHERE ` + where + ` ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *VisitRepository) Heatmap(ctx context.Context, linkID int64, days int) (*domain.Heatmap, error) {
	query := `
		SELECT
			EXTRACT(DOW FROM created_at AT TIME ZONE 'UTC')::int AS dow,
			EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC')::int AS hour,
			COUNT(*)
		FROM visit_details
		WHERE link_id = $1
			AND created_at >= NOW() - INTERVAL '1 day' * $2
		GROUP BY dow, hour
	`

	rows, err := r.db.Query(ctx, query, linkID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	heatmap := &domain.Heatmap{Days: days}
	for rows.Next() {
		var dow, hour int
		var count int64
		if err := rows.Scan(&dow, &hour, &count); err != nil {
			return nil, err
		}
		if dow >= 0 && dow < 7 && hour >= 0 && hour < 24 {
			heatmap.Cells[dow][hour] = count
		}
	}

	return heatmap, rows.Err()
}

// groupable lists the columns countBy may group on.
var groupable = map[string]string{
	"utm_campaign": "utm_campaign",
	"utm_source":   "utm_source",
	"utm_medium":   "utm_medium",
	"device_type":  "device_type",
	"browser":      "browser",
	"os":           "os",
}

func (r *VisitRepository) countBy(ctx context.Context, linkID int64, column string, skipEmpty bool, limit int) ([]domain.StatItem, error) {
	col, ok := groupable[column]
	if !ok {
		return nil, fmt.Errorf("cannot group visits by %q", column)
	}

	where := "link_id = $1"
	if skipEmpty {
		where += " AND " + col + " <> ''"
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(NULLIF(%[1]s, ''), 'unknown') AS name, COUNT(*) AS value
		FROM visit_details
		WHERE %[2]s
		GROUP BY name
		ORDER BY value DESC, name
		LIMIT $2
	`, col, where)

	rows, err := r.db.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.StatItem{}
	for rows.Next() {
		var item domain.StatItem
		if err := rows.Scan(&item.Name, &item.Value); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const breakdownLimit = 20

func (r *VisitRepository) UTMBreakdown(ctx context.Context, linkID int64) (*domain.UTMBreakdown, error) {
	campaigns, err := r.countBy(ctx, linkID, "utm_campaign", true, breakdownLimit)
	if err != nil {
		return nil, err
	}
	sources, err := r.countBy(ctx, linkID, "utm_source", true, breakdownLimit)
	if err != nil {
		return nil, err
	}
	mediums, err := r.countBy(ctx, linkID, "utm_medium", true, breakdownLimit)
	if err != nil {
		return nil, err
	}
	return &domain.UTMBreakdown{Campaigns: campaigns, Sources: sources, Mediums: mediums}, nil
}

func (r *VisitRepository) DeviceBreakdown(ctx context.Context, linkID int64) (*domain.DeviceBreakdown, error) {
	devices, err := r.countBy(ctx, linkID, "device_type", false, breakdownLimit)
	if err != nil {
		return nil, err
	}
	browsers, err := r.countBy(ctx, linkID, "browser", false, breakdownLimit)
	if err != nil {
		return nil, err
	}
	oses, err := r.countBy(ctx, linkID, "os", false, breakdownLimit)
	if err != nil {
		return nil, err
	}
	return &domain.DeviceBreakdown{Devices: devices, Browsers: browsers, OSes: oses}, nil
}

// ActiveVisitors counts distinct IPs seen on the link in the last minutes.
func (r *VisitRepository) ActiveVisitors(ctx context.Context, linkID int64, minutes int) (*domain.ActiveVisitors, error) {
	query := `
		SELECT COUNT(DISTINCT ip)
		FROM visit_details
		WHERE link_id = $1
			AND created_at >= NOW() - INTERVAL '1 minute' * $2
	`

	active := &domain.ActiveVisitors{LinkID: linkID, Minutes: minutes}
	if err := r.db.QueryRow(ctx, query, linkID, minutes).Scan(&active.Count); err != nil {
		return nil, err
	}
	return active, nil
}

// FunnelCounts returns visit and unique-visitor totals for each link, in the
// order the IDs were given. Unknown IDs are omitted.
func (r *VisitRepository) FunnelCounts(ctx context.Context, linkIDs []int64) ([]domain.FunnelCount, error) {
	query := `
		SELECT l.id, l.address, COUNT(v.id), COUNT(DISTINCT v.ip)
		FROM links l
		LEFT JOIN visit_details v ON v.link_id = l.id
		WHERE l.id = ANY($1)
		GROUP BY l.id, l.address
	`

	rows, err := r.db.Query(ctx, query, linkIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]domain.FunnelCount, len(linkIDs))
	for rows.Next() {
		var fc domain.FunnelCount
		if err := rows.Scan(&fc.LinkID, &fc.Address, &fc.Visits, &fc.UniqueVisitors); err != nil {
			return nil, err
		}
		byID[fc.LinkID] = fc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make([]domain.FunnelCount, 0, len(linkIDs))
	for _, id := range linkIDs {
		if fc, ok := byID[id]; ok {
			counts = append(counts, fc)
		}
	}
	return counts, nil
}
