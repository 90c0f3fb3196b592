package redirect

import (
	"net/url"
	"strings"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

// BuildTargetURL appends the link's default UTM parameters to target.
// Parameters already present on the target, even empty ones, are kept and
// the target's own query string is never reordered or re-encoded. A target
// that is not an absolute URL is returned unchanged with ErrMalformedTarget.
func BuildTargetURL(target string, link *domain.Link) (string, error) {
	defaults := [][2]string{
		{"utm_campaign", link.UTMCampaign},
		{"utm_source", link.UTMSource},
		{"utm_medium", link.UTMMedium},
	}

	hasDefaults := false
	for _, kv := range defaults {
		if kv[1] != "" {
			hasDefaults = true
			break
		}
	}
	if !hasDefaults {
		return target, nil
	}

	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return target, domain.ErrMalformedTarget
	}

	present := u.Query()
	missing := url.Values{}
	for _, kv := range defaults {
		if kv[1] != "" && !present.Has(kv[0]) {
			missing.Set(kv[0], kv[1])
		}
	}
	if len(missing) == 0 {
		return target, nil
	}

	switch {
	case u.RawQuery == "":
		u.RawQuery = missing.Encode()
	case strings.HasSuffix(u.RawQuery, "&"):
		u.RawQuery += missing.Encode()
	default:
		u.RawQuery += "&" + missing.Encode()
	}
	return u.String(), nil
}
