package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrLinkNotFound     = errors.New("link not found")
	ErrQuotaExceeded    = errors.New("click limit reached for this period")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrMalformedTarget  = errors.New("malformed target url")
)

// PolicyDeniedError is a user-visible denial by ban, IP, geo or rate-limit
// policy.
type PolicyDeniedError struct {
	Policy      string
	Reason      string
	Status      int
	RetryAfter  time.Duration
	RedirectURL string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("%s policy denied: %s", e.Policy, e.Reason)
}

// TransientStoreError wraps a store failure. It is logged, never shown to the
// visitor.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func NewTransientStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

// DeniedOutcome maps a policy denial to a pipeline outcome. A configured
// fallback URL turns the denial into a redirect.
func DeniedOutcome(err *PolicyDeniedError) *Outcome {
	if err.RedirectURL != "" {
		return &Outcome{Kind: OutcomeRedirect, URL: err.RedirectURL, StatusCode: http.StatusFound, Reason: err.Reason}
	}
	status := err.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	return &Outcome{Kind: OutcomeDeny, StatusCode: status, Reason: err.Reason, RetryAfter: err.RetryAfter}
}
