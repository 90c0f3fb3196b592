package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RuleRepository reads the access and routing rules attached to links.
type RuleRepository struct {
	db *pgxpool.Pool
}

func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListIPRules returns the active rules of the link followed by the active
// account-wide rules of its owner.
func (r *RuleRepository) ListIPRules(ctx context.Context, linkID int64, userID *int64) ([]domain.IPRule, error) {
	query := `
		SELECT id, link_id, user_id, ip_address, type, is_active
		FROM ip_rules
		WHERE is_active = true
		AND (link_id = $1 OR (link_id IS NULL AND $2::bigint IS NOT NULL AND user_id = $2))
		ORDER BY link_id NULLS LAST, id
	`

	rows, err := r.db.Query(ctx, query, linkID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.IPRule
	for rows.Next() {
		var rule domain.IPRule
		var ruleType string
		if err := rows.Scan(&rule.ID, &rule.LinkID, &rule.UserID, &rule.IPAddress, &ruleType, &rule.IsActive); err != nil {
			return nil, err
		}
		rule.Type = domain.IPRuleType(ruleType)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func (r *RuleRepository) ListGeoRestrictions(ctx context.Context, linkID int64) ([]domain.GeoRestriction, error) {
	query := `
		SELECT id, link_id, country_code, region_code, city, type, redirect_url
		FROM geo_restrictions
		WHERE link_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var restrictions []domain.GeoRestriction
	for rows.Next() {
		var g domain.GeoRestriction
		var geoType string
		if err := rows.Scan(&g.ID, &g.LinkID, &g.CountryCode, &g.RegionCode, &g.City, &geoType, &g.RedirectURL); err != nil {
			return nil, err
		}
		g.Type = domain.GeoRestrictionType(geoType)
		restrictions = append(restrictions, g)
	}

	return restrictions, rows.Err()
}

func (r *RuleRepository) ListRateLimitRules(ctx context.Context, linkID int64, userID *int64) ([]domain.RateLimitRule, error) {
	query := `
		SELECT id, link_id, user_id, max_requests, window_seconds, action, block_duration_seconds, is_active
		FROM rate_limit_rules
		WHERE is_active = true
		AND (link_id = $1 OR (link_id IS NULL AND $2::bigint IS NOT NULL AND user_id = $2))
		ORDER BY link_id NULLS LAST, id
	`

	rows, err := r.db.Query(ctx, query, linkID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.RateLimitRule
	for rows.Next() {
		var rule domain.RateLimitRule
		var action string
		var windowSec, blockSec int
		if err := rows.Scan(&rule.ID, &rule.LinkID, &rule.UserID, &rule.MaxRequests, &windowSec, &action, &blockSec, &rule.IsActive); err != nil {
			return nil, err
		}
		rule.Window = time.Duration(windowSec) * time.Second
		rule.BlockDuration = time.Duration(blockSec) * time.Second
		rule.Action = domain.RateLimitAction(action)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// ListRedirectRules returns the link's active smart-redirect rules. Rules
// whose condition cannot be decoded are skipped, since an empty condition
// would match every visitor.
func (r *RuleRepository) ListRedirectRules(ctx context.Context, linkID int64) ([]domain.RedirectRule, error) {
	query := `
		SELECT id, link_id, priority, condition_type, condition, target_url, is_active
		FROM redirect_rules
		WHERE link_id = $1 AND is_active = true
		ORDER BY priority DESC, id
	`

	rows, err := r.db.Query(ctx, query, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.RedirectRule
	for rows.Next() {
		var rule domain.RedirectRule
		var conditionType string
		var condition []byte
		if err := rows.Scan(&rule.ID, &rule.LinkID, &rule.Priority, &conditionType, &condition, &rule.TargetURL, &rule.IsActive); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(condition, &rule.Condition); err != nil {
			logger.FromContext(ctx).Warn("Skipping redirect rule with invalid condition",
				slog.Int64("rule_id", rule.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		rule.ConditionType = domain.ConditionType(conditionType)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}
