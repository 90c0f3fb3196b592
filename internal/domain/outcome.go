package domain

import "time"

type OutcomeKind string

const (
	OutcomeRedirect         OutcomeKind = "redirect"
	OutcomeDeny             OutcomeKind = "deny"
	OutcomePasswordRequired OutcomeKind = "password_required"
	OutcomeInfo             OutcomeKind = "info"
	OutcomeNotFound         OutcomeKind = "not_found"
	OutcomeGone             OutcomeKind = "gone"
)

// Outcome is the verdict of the redirect pipeline for one request.
type Outcome struct {
	Kind       OutcomeKind   `json:"kind"`
	URL        string        `json:"url,omitempty"`
	StatusCode int           `json:"status_code"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Link       *Link         `json:"link,omitempty"`
}

// RequestContext is everything the pipeline needs from an inbound request.
type RequestContext struct {
	IP             string
	UserAgent      string
	Referrer       string
	AcceptLanguage string
	CountryHint    string
	Info           bool
	Now            time.Time
}
