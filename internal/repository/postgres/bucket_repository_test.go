//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketRepository_Record_Concurrent(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := postgres.NewBucketRepository(db)
	ctx := context.Background()
	link := createLink(t, db, &domain.Link{})

	at := time.Date(2026, 3, 2, 14, 10, 0, 0, time.UTC)
	const n = 40

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			browser := domain.BrowserChrome
			if i%2 == 1 {
				browser = domain.BrowserFirefox
			}
			err := repo.Record(ctx, link.ID, at.Add(time.Duration(i)*time.Second), browser, domain.OSLinux, "DE", "example[dot]com")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var rows int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM visits WHERE link_id = $1`, link.ID).Scan(&rows))
	assert.Equal(t, 1, rows)

	bucket, err := repo.Get(ctx, link.ID, at)
	require.NoError(t, err)
	assert.Equal(t, int64(n), bucket.Total)
	assert.Equal(t, int64(n/2), bucket.Browser[domain.BrowserChrome])
	assert.Equal(t, int64(n/2), bucket.Browser[domain.BrowserFirefox])
	assert.Equal(t, int64(n), bucket.OS[domain.OSLinux])
	assert.Equal(t, int64(n), bucket.Countries["DE"])
	assert.Equal(t, int64(n), bucket.Referrers["example[dot]com"])
}

func TestBucketRepository_Stream(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := postgres.NewBucketRepository(db)
	ctx := context.Background()
	link := createLink(t, db, &domain.Link{})

	now := time.Now().UTC()
	require.NoError(t, repo.Record(ctx, link.ID, now.Add(-3*time.Hour), "chrome", "windows", "US", "Direct"))
	require.NoError(t, repo.Record(ctx, link.ID, now.Add(-3*time.Hour), "chrome", "windows", "US", "Direct"))
	require.NoError(t, repo.Record(ctx, link.ID, now.Add(-40*24*time.Hour), "safari", "ios", "FR", "Direct"))

	var buckets []*domain.Bucket
	err := repo.Stream(ctx, link.ID, now.Add(-365*24*time.Hour), func(b *domain.Bucket) error {
		buckets = append(buckets, b)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(1), buckets[0].Browser["safari"])
	assert.Equal(t, int64(2), buckets[1].Browser["chrome"])
}
