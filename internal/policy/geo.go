package policy

import (
	"strings"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

// CheckGeo walks restrictions in definition order; the first matching rule
// decides. With no match, the visit is denied only if allow rules exist.
func CheckGeo(v Visitor, restrictions []domain.GeoRestriction) Decision {
	hasAllow := false

	for _, r := range restrictions {
		if r.Type == domain.GeoAllow {
			hasAllow = true
		}
		if !matchLocation(v, r) {
			continue
		}
		switch r.Type {
		case domain.GeoAllow:
			return Allow()
		case domain.GeoBlock:
			return Decision{
				Policy:      PolicyGeo,
				Reason:      "access from your location is restricted",
				RedirectURL: r.RedirectURL,
			}
		}
	}

	if hasAllow {
		return Decision{Policy: PolicyGeo, Reason: "access from your location is restricted"}
	}
	return Allow()
}

func matchLocation(v Visitor, r domain.GeoRestriction) bool {
	if v.Country == "" || !strings.EqualFold(v.Country, r.CountryCode) {
		return false
	}
	if r.RegionCode != "" && !strings.EqualFold(v.Region, r.RegionCode) {
		return false
	}
	if r.City != "" && !strings.EqualFold(v.City, r.City) {
		return false
	}
	return true
}
