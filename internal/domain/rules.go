package domain

import "time"

type IPRuleType string

const (
	IPRuleBlacklist IPRuleType = "blacklist"
	IPRuleWhitelist IPRuleType = "whitelist"
)

// IPRule is scoped to a link or, when LinkID is nil, to every link of UserID.
// IPAddress holds a single address or a CIDR range.
type IPRule struct {
	ID        int64      `json:"id"`
	LinkID    *int64     `json:"link_id,omitempty"`
	UserID    *int64     `json:"user_id,omitempty"`
	IPAddress string     `json:"ip_address"`
	Type      IPRuleType `json:"type"`
	IsActive  bool       `json:"is_active"`
}

type GeoRestrictionType string

const (
	GeoAllow GeoRestrictionType = "allow"
	GeoBlock GeoRestrictionType = "block"
)

type GeoRestriction struct {
	ID          int64              `json:"id"`
	LinkID      int64              `json:"link_id"`
	CountryCode string             `json:"country_code"`
	RegionCode  string             `json:"region_code,omitempty"`
	City        string             `json:"city,omitempty"`
	Type        GeoRestrictionType `json:"type"`
	RedirectURL string             `json:"redirect_url,omitempty"`
}

type RateLimitAction string

const (
	RateLimitBlock    RateLimitAction = "block"
	RateLimitThrottle RateLimitAction = "throttle"
	RateLimitCaptcha  RateLimitAction = "captcha"
)

type RateLimitRule struct {
	ID            int64           `json:"id"`
	LinkID        *int64          `json:"link_id,omitempty"`
	UserID        *int64          `json:"user_id,omitempty"`
	MaxRequests   int             `json:"max_requests"`
	Window        time.Duration   `json:"window"`
	Action        RateLimitAction `json:"action"`
	BlockDuration time.Duration   `json:"block_duration"`
	IsActive      bool            `json:"is_active"`
}

// RateLimitState is the violation record kept per (rule, IP).
type RateLimitState struct {
	Count        int        `json:"count"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

type ConditionType string

const (
	ConditionDevice   ConditionType = "device"
	ConditionBrowser  ConditionType = "browser"
	ConditionOS       ConditionType = "os"
	ConditionCountry  ConditionType = "country"
	ConditionLanguage ConditionType = "language"
	ConditionTime     ConditionType = "time"
	ConditionReferrer ConditionType = "referrer"
	ConditionCustom   ConditionType = "custom"
)

// RedirectCondition is the structured condition payload of a redirect rule.
// Empty fields are not evaluated.
type RedirectCondition struct {
	Devices          []string    `json:"devices,omitempty"`
	Browsers         []string    `json:"browsers,omitempty"`
	OSes             []string    `json:"os,omitempty"`
	Countries        []string    `json:"countries,omitempty"`
	Languages        []string    `json:"languages,omitempty"`
	ReferrerContains string      `json:"referrer_contains,omitempty"`
	TimeWindow       *TimeWindow `json:"time_window,omitempty"`
}

// TimeWindow matches when the hour falls in [StartHour, EndHour) and, if
// Days is set, the weekday is listed. A window with StartHour > EndHour wraps
// midnight.
type TimeWindow struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	Days      []time.Weekday `json:"days,omitempty"`
	Location  string         `json:"timezone,omitempty"`
}

type RedirectRule struct {
	ID            int64             `json:"id"`
	LinkID        int64             `json:"link_id"`
	Priority      int               `json:"priority"`
	ConditionType ConditionType     `json:"condition_type"`
	Condition     RedirectCondition `json:"condition"`
	TargetURL     string            `json:"target_url"`
	IsActive      bool              `json:"is_active"`
}
