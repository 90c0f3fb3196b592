package domain

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucket_Add(t *testing.T) {
	b := NewBucket(1, TruncateHour(time.Date(2026, 3, 2, 14, 37, 12, 0, time.UTC)))

	b.Add(BrowserChrome, OSWindows, "US", "example[dot]com")
	b.Add(BrowserChrome, OSWindows, "US", "example[dot]com")

	assert.Equal(t, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), b.Hour)
	assert.Equal(t, int64(2), b.Total)
	assert.Equal(t, int64(2), b.Browser[BrowserChrome])
	assert.Equal(t, int64(0), b.Browser[BrowserFirefox])
	assert.Equal(t, int64(2), b.OS[OSWindows])
	assert.Equal(t, int64(2), b.Countries["US"])
	assert.Equal(t, int64(2), b.Referrers["example[dot]com"])
}

func TestBucket_AddNormalizesUnknowns(t *testing.T) {
	b := &Bucket{}

	b.Add("netscape", "beos", "", "")

	assert.Equal(t, int64(1), b.Browser[BrowserOther])
	assert.Equal(t, int64(1), b.OS[OSOther])
	assert.Equal(t, int64(1), b.Countries[UnknownCountry])
	assert.Equal(t, int64(1), b.Referrers[DirectReferrer])
	assert.Equal(t, int64(1), b.Total)
}

func TestBucket_TotalMatchesColumns(t *testing.T) {
	b := NewBucket(1, time.Now())
	browsers := []string{BrowserChrome, BrowserSafari, "unknown", BrowserEdge, BrowserIE}
	for i := 0; i < 100; i++ {
		b.Add(browsers[i%len(browsers)], OSes[i%len(OSes)], "DE", "Direct")
	}

	var browserSum, osSum int64
	for _, v := range b.Browser {
		browserSum += v
	}
	for _, v := range b.OS {
		osSum += v
	}
	assert.Equal(t, b.Total, browserSum)
	assert.Equal(t, b.Total, osSum)
}

func TestLink_StatusCode(t *testing.T) {
	tests := []struct {
		redirectType int
		expected     int
	}{
		{0, http.StatusFound},
		{301, http.StatusMovedPermanently},
		{302, http.StatusFound},
		{307, http.StatusTemporaryRedirect},
		{308, http.StatusFound},
	}

	for _, tt := range tests {
		link := &Link{RedirectType: tt.redirectType}
		assert.Equal(t, tt.expected, link.StatusCode())
	}
}

func TestLink_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	assert.False(t, (&Link{}).IsExpired(now))
	assert.True(t, (&Link{ExpireIn: &past}).IsExpired(now))
	assert.True(t, (&Link{ExpireIn: &now}).IsExpired(now))
	assert.False(t, (&Link{ExpireIn: &future}).IsExpired(now))
}

func TestDeniedOutcome(t *testing.T) {
	o := DeniedOutcome(&PolicyDeniedError{Policy: "geo", Reason: "blocked", RedirectURL: "https://example.com/elsewhere"})
	assert.Equal(t, OutcomeRedirect, o.Kind)
	assert.Equal(t, http.StatusFound, o.StatusCode)

	o = DeniedOutcome(&PolicyDeniedError{Policy: "ip", Reason: "blocked"})
	assert.Equal(t, OutcomeDeny, o.Kind)
	assert.Equal(t, http.StatusForbidden, o.StatusCode)
}
