// Package policy holds the pure access-policy evaluators consulted by the
// redirect pipeline. None of them perform I/O.
package policy

import (
	"net/http"
	"strings"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

const (
	PolicyIP        = "ip"
	PolicyGeo       = "geo"
	PolicyRateLimit = "rate_limit"
)

type Decision struct {
	Allowed      bool
	Policy       string
	Reason       string
	Status       int
	RedirectURL  string
	RetryAfter   time.Duration
	BlockedUntil *time.Time
	Action       domain.RateLimitAction
}

func Allow() Decision {
	return Decision{Allowed: true}
}

// Err converts a denial into the pipeline error type. It returns nil for
// allowed decisions.
func (d Decision) Err() *domain.PolicyDeniedError {
	if d.Allowed {
		return nil
	}
	status := d.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	return &domain.PolicyDeniedError{
		Policy:      d.Policy,
		Reason:      d.Reason,
		Status:      status,
		RetryAfter:  d.RetryAfter,
		RedirectURL: d.RedirectURL,
	}
}

// Visitor is the parsed request context the evaluators match against.
type Visitor struct {
	IP         string
	DeviceType string
	Browser    string
	OS         string
	Country    string
	Region     string
	City       string
	Language   string
	Referrer   string
	Now        time.Time
}

// PrimaryLanguage returns the first tag of an Accept-Language header,
// lowercased, e.g. "en-us" for "en-US,en;q=0.9".
func PrimaryLanguage(acceptLanguage string) string {
	first := strings.Split(acceptLanguage, ",")[0]
	first = strings.Split(first, ";")[0]
	return strings.ToLower(strings.TrimSpace(first))
}
