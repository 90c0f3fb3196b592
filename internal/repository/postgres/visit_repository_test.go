//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitRepository_InsertAndQuery(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := postgres.NewVisitRepository(db)
	ctx := context.Background()
	link := createLink(t, db, &domain.Link{})

	base := time.Now().UTC().Add(-time.Hour)
	visits := []*domain.VisitDetail{
		{LinkID: link.ID, IP: "1.1.1.1", Country: "US", Browser: "chrome", OS: "windows", DeviceType: "desktop", UTMSource: "news", CreatedAt: base},
		{LinkID: link.ID, IP: "1.1.1.1", Country: "US", Browser: "chrome", OS: "windows", DeviceType: "desktop", CreatedAt: base.Add(time.Minute)},
		{LinkID: link.ID, IP: "2.2.2.2", Country: "DE", Browser: "firefox", OS: "linux", DeviceType: "desktop", UTMSource: "news", CreatedAt: base.Add(2 * time.Minute)},
		{LinkID: link.ID, IP: "3.3.3.3", Country: "FR", Browser: "safari", OS: "ios", DeviceType: "mobile", IsBot: true, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, v := range visits {
		require.NoError(t, repo.Insert(ctx, v))
	}

	assert.True(t, visits[0].IsUnique)
	assert.False(t, visits[1].IsUnique)
	assert.True(t, visits[2].IsUnique)

	page, err := repo.Query(ctx, link.ID, domain.VisitFilter{UTMSource: "news"}, domain.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Visits, 2)
	assert.Equal(t, "2.2.2.2", page.Visits[0].IP)

	notBot := false
	page, err = repo.Query(ctx, link.ID, domain.VisitFilter{IsBot: &notBot}, domain.Pagination{Limit: 1, Skip: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Visits, 1)

	page, err = repo.Query(ctx, link.ID, domain.VisitFilter{Country: "de"}, domain.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	var exported int
	err = repo.Each(ctx, link.ID, domain.VisitFilter{}, func(domain.VisitDetail) error {
		exported++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, exported)
}

func TestVisitRepository_Aggregates(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := postgres.NewVisitRepository(db)
	ctx := context.Background()
	first := createLink(t, db, &domain.Link{Address: "step1"})
	second := createLink(t, db, &domain.Link{Address: "step2"})

	now := time.Now().UTC()
	for _, v := range []*domain.VisitDetail{
		{LinkID: first.ID, IP: "1.1.1.1", Browser: "chrome", OS: "windows", DeviceType: "desktop", UTMCampaign: "fall", CreatedAt: now.Add(-2 * time.Minute)},
		{LinkID: first.ID, IP: "2.2.2.2", Browser: "chrome", OS: "android", DeviceType: "mobile", UTMCampaign: "fall", CreatedAt: now.Add(-time.Hour)},
		{LinkID: first.ID, IP: "2.2.2.2", Browser: "firefox", OS: "linux", DeviceType: "desktop", CreatedAt: now.Add(-2 * time.Hour)},
		{LinkID: second.ID, IP: "1.1.1.1", Browser: "chrome", OS: "windows", DeviceType: "desktop", CreatedAt: now.Add(-time.Minute)},
	} {
		require.NoError(t, repo.Insert(ctx, v))
	}

	utm, err := repo.UTMBreakdown(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.StatItem{{Name: "fall", Value: 2}}, utm.Campaigns)
	assert.Empty(t, utm.Sources)

	devices, err := repo.DeviceBreakdown(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatItem{Name: "desktop", Value: 2}, devices.Devices[0])
	assert.Equal(t, domain.StatItem{Name: "chrome", Value: 2}, devices.Browsers[0])

	active, err := repo.ActiveVisitors(ctx, first.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.Count)

	heatmap, err := repo.Heatmap(ctx, first.ID, 7)
	require.NoError(t, err)
	var total int64
	for _, day := range heatmap.Cells {
		for _, c := range day {
			total += c
		}
	}
	assert.Equal(t, int64(3), total)

	counts, err := repo.FunnelCounts(ctx, []int64{first.ID, second.ID, 999999})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, domain.FunnelCount{LinkID: first.ID, Address: "step1", Visits: 3, UniqueVisitors: 2}, counts[0])
	assert.Equal(t, domain.FunnelCount{LinkID: second.ID, Address: "step2", Visits: 1, UniqueVisitors: 1}, counts[1])
}
