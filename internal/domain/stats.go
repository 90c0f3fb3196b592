package domain

import "time"

type StatItem struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type PeriodBreakdown struct {
	Browser  []StatItem `json:"browser"`
	OS       []StatItem `json:"os"`
	Country  []StatItem `json:"country"`
	Referrer []StatItem `json:"referrer"`
}

type PeriodStats struct {
	Total int64           `json:"total"`
	Views []int64         `json:"views"`
	Stats PeriodBreakdown `json:"stats"`
}

type LinkStats struct {
	LinkID    int64       `json:"link_id"`
	Address   string      `json:"address,omitempty"`
	Target    string      `json:"target,omitempty"`
	Total     int64       `json:"total"`
	LastDay   PeriodStats `json:"lastDay"`
	LastWeek  PeriodStats `json:"lastWeek"`
	LastMonth PeriodStats `json:"lastMonth"`
	LastYear  PeriodStats `json:"lastYear"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Heatmap counts visits by weekday (Sunday first) and hour of day.
type Heatmap struct {
	Days  int          `json:"days"`
	Cells [7][24]int64 `json:"cells"`
}

type UTMBreakdown struct {
	Campaigns []StatItem `json:"campaigns"`
	Sources   []StatItem `json:"sources"`
	Mediums   []StatItem `json:"mediums"`
}

type DeviceBreakdown struct {
	Devices  []StatItem `json:"devices"`
	Browsers []StatItem `json:"browsers"`
	OSes     []StatItem `json:"os"`
}

type ActiveVisitors struct {
	LinkID  int64 `json:"link_id"`
	Minutes int   `json:"minutes"`
	Count   int64 `json:"count"`
}

// FunnelCount is the raw per-link input of a funnel.
type FunnelCount struct {
	LinkID         int64  `json:"link_id"`
	Address        string `json:"address,omitempty"`
	Visits         int64  `json:"visits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

type FunnelStep struct {
	FunnelCount
	Step       int     `json:"step"`
	DropOff    float64 `json:"drop_off"`
	Conversion float64 `json:"conversion"`
}

type Funnel struct {
	Steps []FunnelStep `json:"steps"`
}

type Comparison struct {
	Variants []FunnelStep `json:"variants"`
	LeaderID int64        `json:"leader_id"`
}
