package visit

import (
	"net/url"
	"strings"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

type UTM struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// ReferrerDomain returns the host of a referrer URL, empty when the referrer
// is absent or unparsable.
func ReferrerDomain(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// DisplayReferrer is the aggregate-store key for a referrer: dots become
// "[dot]" so the name is safe as a JSON map key in dotted paths.
func DisplayReferrer(referrer string) string {
	host := ReferrerDomain(referrer)
	if host == "" {
		return domain.DirectReferrer
	}
	return strings.ReplaceAll(host, ".", "[dot]")
}

func ExtractUTM(referrer string) UTM {
	u, err := url.Parse(strings.TrimSpace(referrer))
	if err != nil || u.RawQuery == "" {
		return UTM{}
	}
	q := u.Query()
	return UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
}
