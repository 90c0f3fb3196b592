package domain

import "time"

const (
	BrowserChrome  = "chrome"
	BrowserFirefox = "firefox"
	BrowserSafari  = "safari"
	BrowserEdge    = "edge"
	BrowserOpera   = "opera"
	BrowserIE      = "ie"
	BrowserOther   = "other"

	OSWindows = "windows"
	OSMacOS   = "macos"
	OSLinux   = "linux"
	OSAndroid = "android"
	OSIOS     = "ios"
	OSOther   = "other"

	UnknownCountry = "Unknown"
	DirectReferrer = "Direct"
)

// Browsers and OSes list the closed sets of counter columns kept per bucket.
var (
	Browsers = []string{BrowserChrome, BrowserFirefox, BrowserSafari, BrowserEdge, BrowserOpera, BrowserIE, BrowserOther}
	OSes     = []string{OSWindows, OSMacOS, OSLinux, OSAndroid, OSIOS, OSOther}
)

func IsKnownBrowser(name string) bool {
	return contains(Browsers, name)
}

func IsKnownOS(name string) bool {
	return contains(OSes, name)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// VisitEvent is the unit of work carried by the ingestion queue.
type VisitEvent struct {
	LinkID         int64     `json:"link_id"`
	UserID         *int64    `json:"user_id,omitempty"`
	UserAgent      string    `json:"user_agent"`
	IP             string    `json:"ip"`
	CountryHint    string    `json:"country_hint,omitempty"`
	Referrer       string    `json:"referrer,omitempty"`
	AcceptLanguage string    `json:"accept_language,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Bucket is one hourly aggregate row of a link.
type Bucket struct {
	ID        int64            `json:"id"`
	LinkID    int64            `json:"link_id"`
	Hour      time.Time        `json:"created_at"`
	Browser   map[string]int64 `json:"browser"`
	OS        map[string]int64 `json:"os"`
	Countries map[string]int64 `json:"countries"`
	Referrers map[string]int64 `json:"referrers"`
	Total     int64            `json:"total"`
}

func NewBucket(linkID int64, hour time.Time) *Bucket {
	b := &Bucket{
		LinkID:    linkID,
		Hour:      hour,
		Browser:   make(map[string]int64, len(Browsers)),
		OS:        make(map[string]int64, len(OSes)),
		Countries: make(map[string]int64),
		Referrers: make(map[string]int64),
	}
	for _, name := range Browsers {
		b.Browser[name] = 0
	}
	for _, name := range OSes {
		b.OS[name] = 0
	}
	return b
}

// Add merges one visit into the bucket. Unknown browser or OS names land in
// the "other" column.
func (b *Bucket) Add(browser, os, country, referrer string) {
	if !IsKnownBrowser(browser) {
		browser = BrowserOther
	}
	if !IsKnownOS(os) {
		os = OSOther
	}
	if country == "" {
		country = UnknownCountry
	}
	if referrer == "" {
		referrer = DirectReferrer
	}
	if b.Countries == nil {
		b.Countries = make(map[string]int64)
	}
	if b.Referrers == nil {
		b.Referrers = make(map[string]int64)
	}
	if b.Browser == nil {
		b.Browser = make(map[string]int64)
	}
	if b.OS == nil {
		b.OS = make(map[string]int64)
	}

	b.Browser[browser]++
	b.OS[os]++
	b.Countries[country]++
	b.Referrers[referrer]++
	b.Total++
}

// TruncateHour returns t truncated to the top of its UTC hour.
func TruncateHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// VisitDetail is one append-only per-visit fact row.
type VisitDetail struct {
	ID             int64     `json:"id"`
	LinkID         int64     `json:"link_id"`
	UserID         *int64    `json:"user_id,omitempty"`
	IP             string    `json:"ip"`
	Country        string    `json:"country,omitempty"`
	City           string    `json:"city,omitempty"`
	Region         string    `json:"region,omitempty"`
	Browser        string    `json:"browser"`
	BrowserVersion string    `json:"browser_version,omitempty"`
	OS             string    `json:"os"`
	OSVersion      string    `json:"os_version,omitempty"`
	DeviceType     string    `json:"device_type"`
	DeviceBrand    string    `json:"device_brand,omitempty"`
	DeviceModel    string    `json:"device_model,omitempty"`
	Referrer       string    `json:"referrer,omitempty"`
	ReferrerDomain string    `json:"referrer_domain,omitempty"`
	UTMSource      string    `json:"utm_source,omitempty"`
	UTMMedium      string    `json:"utm_medium,omitempty"`
	UTMCampaign    string    `json:"utm_campaign,omitempty"`
	UTMTerm        string    `json:"utm_term,omitempty"`
	UTMContent     string    `json:"utm_content,omitempty"`
	Language       string    `json:"language,omitempty"`
	IsBot          bool      `json:"is_bot"`
	IsUnique       bool      `json:"is_unique"`
	CreatedAt      time.Time `json:"created_at"`
}

type VisitFilter struct {
	From        *time.Time `form:"from" json:"from,omitempty"`
	To          *time.Time `form:"to" json:"to,omitempty"`
	Country     string     `form:"country" json:"country,omitempty" validate:"omitempty,country"`
	Browser     string     `form:"browser" json:"browser,omitempty" validate:"omitempty,max=64"`
	OS          string     `form:"os" json:"os,omitempty" validate:"omitempty,max=64"`
	DeviceType  string     `form:"device_type" json:"device_type,omitempty" validate:"omitempty,oneof=desktop mobile tablet bot unknown"`
	UTMSource   string     `form:"utm_source" json:"utm_source,omitempty"`
	UTMMedium   string     `form:"utm_medium" json:"utm_medium,omitempty"`
	UTMCampaign string     `form:"utm_campaign" json:"utm_campaign,omitempty"`
	UTMTerm     string     `form:"utm_term" json:"utm_term,omitempty"`
	UTMContent  string     `form:"utm_content" json:"utm_content,omitempty"`
	IsBot       *bool      `form:"is_bot" json:"is_bot,omitempty"`
}

type Pagination struct {
	Limit int `form:"limit" json:"limit" validate:"gte=1,lte=500"`
	Skip  int `form:"skip" json:"skip" validate:"gte=0"`
}

type VisitPage struct {
	Visits []VisitDetail `json:"visits"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Skip   int           `json:"skip"`
}
