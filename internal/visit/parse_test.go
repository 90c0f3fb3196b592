package visit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractUTM(t *testing.T) {
	utm := ExtractUTM("https://example.com/?utm_source=news&utm_campaign=fall")

	assert.Equal(t, "news", utm.Source)
	assert.Equal(t, "fall", utm.Campaign)
	assert.Empty(t, utm.Medium)
	assert.Empty(t, utm.Term)
	assert.Empty(t, utm.Content)
}

func TestExtractUTM_NoQuery(t *testing.T) {
	assert.Equal(t, UTM{}, ExtractUTM("https://example.com/path"))
	assert.Equal(t, UTM{}, ExtractUTM(""))
}

func TestReferrerDomain(t *testing.T) {
	tests := []struct {
		referrer string
		expected string
	}{
		{"https://example.com/?utm_source=news", "example.com"},
		{"https://News.Example.org/a/b", "news.example.org"},
		{"http://127.0.0.1:8080/", "127.0.0.1"},
		{"", ""},
		{"   ", ""},
		{"::not a url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.referrer, func(t *testing.T) {
			assert.Equal(t, tt.expected, ReferrerDomain(tt.referrer))
		})
	}
}

func TestDisplayReferrer(t *testing.T) {
	assert.Equal(t, "example[dot]com", DisplayReferrer("https://example.com/page"))
	assert.Equal(t, "Direct", DisplayReferrer(""))
	assert.Equal(t, "Direct", DisplayReferrer("not-a-url"))
}
