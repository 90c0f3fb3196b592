package domain

import (
	"net/http"
	"time"
)

type ClickLimitPeriod string

const (
	PeriodHour  ClickLimitPeriod = "hour"
	PeriodDay   ClickLimitPeriod = "day"
	PeriodWeek  ClickLimitPeriod = "week"
	PeriodMonth ClickLimitPeriod = "month"
	PeriodTotal ClickLimitPeriod = "total"
)

// Duration returns the fixed length of a rolling quota period. Total has no
// duration and reports false.
func (p ClickLimitPeriod) Duration() (time.Duration, bool) {
	switch p {
	case PeriodHour:
		return time.Hour, true
	case PeriodDay:
		return 24 * time.Hour, true
	case PeriodWeek:
		return 7 * 24 * time.Hour, true
	case PeriodMonth:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

type Link struct {
	ID          int64      `json:"id"`
	UserID      *int64     `json:"user_id,omitempty"`
	DomainID    *int64     `json:"domain_id,omitempty"`
	Address     string     `json:"address"`
	Target      string     `json:"target"`
	Description string     `json:"description,omitempty"`
	Banned      bool       `json:"banned"`
	Password    string     `json:"-"`
	ExpireIn    *time.Time `json:"expire_in,omitempty"`
	VisitCount  int64      `json:"visit_count"`

	MaxClicks        *int             `json:"max_clicks,omitempty"`
	ClickLimitPeriod ClickLimitPeriod `json:"click_limit_period,omitempty"`
	ClickCountPeriod int              `json:"click_count_period"`
	ClickPeriodStart *time.Time       `json:"click_period_start,omitempty"`

	RedirectType    int  `json:"redirect_type"`
	EnableAnalytics bool `json:"enable_analytics"`

	IPRestrictionEnabled  bool `json:"ip_restriction_enabled"`
	GeoRestrictionEnabled bool `json:"geo_restriction_enabled"`
	RateLimitEnabled      bool `json:"rate_limit_enabled"`
	SmartRedirectEnabled  bool `json:"smart_redirect_enabled"`

	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *Link) HasPassword() bool {
	return l.Password != ""
}

func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpireIn != nil && !now.Before(*l.ExpireIn)
}

// StatusCode returns the configured redirect status, falling back to 302 for
// anything outside 301/302/307.
func (l *Link) StatusCode() int {
	switch l.RedirectType {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
		return l.RedirectType
	default:
		return http.StatusFound
	}
}

// QuotaState is the stored click-period counter pair of a link.
type QuotaState struct {
	MaxClicks   *int
	Period      ClickLimitPeriod
	Count       int
	PeriodStart *time.Time
}

func (l *Link) QuotaState() QuotaState {
	return QuotaState{
		MaxClicks:   l.MaxClicks,
		Period:      l.ClickLimitPeriod,
		Count:       l.ClickCountPeriod,
		PeriodStart: l.ClickPeriodStart,
	}
}

// LinkUpdate carries the partial fields accepted by LinkStore.Update.
type LinkUpdate struct {
	ClickCountPeriod *int
	ClickPeriodStart *time.Time
	Banned           *bool
}
