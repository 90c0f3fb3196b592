package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/pkg/geo"
	"github.com/devhappys/kutt-sub000/tests/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func testEvent() domain.VisitEvent {
	return domain.VisitEvent{
		LinkID:         7,
		UserAgent:      chromeUA,
		IP:             "81.2.69.142",
		Referrer:       "https://example.com/?utm_source=news&utm_campaign=fall",
		AcceptLanguage: "en-GB,en;q=0.9",
		OccurredAt:     time.Date(2026, 3, 2, 14, 25, 0, 0, time.UTC),
	}
}

func TestProcessor_Process(t *testing.T) {
	links := new(mocks.MockLinkStore)
	buckets := new(mocks.MockBucketWriter)
	details := new(mocks.MockDetailWriter)
	locator := geo.StaticLocator{"81.2.69.142": {Country: "GB", City: "London"}}

	event := testEvent()

	links.On("IncrementVisit", mock.Anything, int64(7)).Return(nil)
	buckets.On("Record", mock.Anything, int64(7), event.OccurredAt, "chrome", "windows", "GB", "example[dot]com").Return(nil)
	details.On("Insert", mock.Anything, mock.MatchedBy(func(d *domain.VisitDetail) bool {
		return d.LinkID == 7 &&
			d.Browser == "chrome" &&
			d.OS == "windows" &&
			d.Country == "GB" &&
			d.City == "London" &&
			d.ReferrerDomain == "example.com" &&
			d.UTMSource == "news" &&
			d.UTMCampaign == "fall" &&
			d.Language == "en-gb" &&
			!d.IsBot
	})).Return(nil)

	p := NewProcessor(links, buckets, details, locator)
	err := p.Process(context.Background(), event)

	require.NoError(t, err)
	links.AssertExpectations(t)
	buckets.AssertExpectations(t)
	details.AssertExpectations(t)
}

func TestProcessor_ProcessSteps_JoinsFailures(t *testing.T) {
	links := new(mocks.MockLinkStore)
	buckets := new(mocks.MockBucketWriter)
	details := new(mocks.MockDetailWriter)

	links.On("IncrementVisit", mock.Anything, int64(7)).Return(nil)
	buckets.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("deadlock detected"))
	details.On("Insert", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	p := NewProcessor(links, buckets, details, nil)
	done, err := p.ProcessSteps(context.Background(), testEvent(), 0)

	require.Error(t, err)
	assert.Equal(t, StepVisitCount, done)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Contains(t, err.Error(), "connection reset")

	var transient *domain.TransientStoreError
	assert.True(t, errors.As(err, &transient))
}

func TestProcessor_ProcessSteps_SkipsDoneSteps(t *testing.T) {
	links := new(mocks.MockLinkStore)
	buckets := new(mocks.MockBucketWriter)
	details := new(mocks.MockDetailWriter)

	details.On("Insert", mock.Anything, mock.Anything).Return(nil)

	p := NewProcessor(links, buckets, details, nil)
	done, err := p.ProcessSteps(context.Background(), testEvent(), StepVisitCount|StepBucket)

	require.NoError(t, err)
	assert.Equal(t, AllSteps, done)
	links.AssertNotCalled(t, "IncrementVisit", mock.Anything, mock.Anything)
	buckets.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_Describe_CountryHintFallback(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil)

	event := testEvent()
	event.CountryHint = "DE"
	event.Referrer = ""
	event.UserAgent = "Googlebot/2.1 (+http://www.google.com/bot.html)"

	detail := p.Describe(event)

	assert.Equal(t, "DE", detail.Country)
	assert.Empty(t, detail.ReferrerDomain)
	assert.True(t, detail.IsBot)
	assert.Equal(t, event.OccurredAt, detail.CreatedAt)
}
