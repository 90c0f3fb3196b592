package policy

import (
	"sort"
	"strings"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

// MatchRedirect returns the target of the highest-priority active rule whose
// configured conditions all match. Rules with equal priority keep their input
// order.
func MatchRedirect(v Visitor, rules []domain.RedirectRule) (string, bool) {
	ordered := make([]domain.RedirectRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive && r.TargetURL != "" {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, r := range ordered {
		if matchCondition(v, r.Condition) {
			return r.TargetURL, true
		}
	}
	return "", false
}

func matchCondition(v Visitor, c domain.RedirectCondition) bool {
	configured := false

	if len(c.Devices) > 0 {
		configured = true
		if !containsFold(c.Devices, v.DeviceType) {
			return false
		}
	}
	if len(c.Browsers) > 0 {
		configured = true
		if !containsFold(c.Browsers, v.Browser) {
			return false
		}
	}
	if len(c.OSes) > 0 {
		configured = true
		if !containsFold(c.OSes, v.OS) {
			return false
		}
	}
	if len(c.Countries) > 0 {
		configured = true
		if !containsFold(c.Countries, v.Country) {
			return false
		}
	}
	if len(c.Languages) > 0 {
		configured = true
		if !matchLanguage(c.Languages, v.Language) {
			return false
		}
	}
	if c.ReferrerContains != "" {
		configured = true
		if !strings.Contains(strings.ToLower(v.Referrer), strings.ToLower(c.ReferrerContains)) {
			return false
		}
	}
	if c.TimeWindow != nil {
		configured = true
		if !matchTimeWindow(v.Now, *c.TimeWindow) {
			return false
		}
	}

	return configured
}

func containsFold(values []string, v string) bool {
	if v == "" {
		return false
	}
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}

func matchLanguage(languages []string, tag string) bool {
	if tag == "" {
		return false
	}
	tag = strings.ToLower(tag)
	for _, l := range languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if tag == l || strings.HasPrefix(tag, l+"-") {
			return true
		}
	}
	return false
}

func matchTimeWindow(now time.Time, w domain.TimeWindow) bool {
	if w.Location != "" {
		if loc, err := time.LoadLocation(w.Location); err == nil {
			now = now.In(loc)
		}
	} else {
		now = now.UTC()
	}

	if len(w.Days) > 0 {
		found := false
		for _, d := range w.Days {
			if d == now.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	hour := now.Hour()
	switch {
	case w.StartHour == w.EndHour:
		return true
	case w.StartHour < w.EndHour:
		return hour >= w.StartHour && hour < w.EndHour
	default:
		return hour >= w.StartHour || hour < w.EndHour
	}
}
