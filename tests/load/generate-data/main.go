package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devhappys/kutt-sub000/internal/config"
	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/repository/postgres"
	"github.com/devhappys/kutt-sub000/internal/visit"
	"github.com/devhappys/kutt-sub000/pkg/generator"
	"github.com/devhappys/kutt-sub000/pkg/geo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	HOT_COUNT  = 10
	WARM_COUNT = 200
	COLD_COUNT = 2000

	HOT_VISITS  = 5000
	WARM_VISITS = 100
	COLD_VISITS = 2

	BATCH_SIZE  = 500
	NUM_WORKERS = 8

	// Visits are spread over the last year so every stats window has data.
	SPREAD = 365 * 24 * time.Hour
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

var referrers = []string{
	"",
	"https://www.google.com/search?q=kutt",
	"https://twitter.com/someone/status/1",
	"https://news.ycombinator.com/item?id=1",
	"https://mail.example.com/?utm_source=newsletter&utm_medium=email&utm_campaign=spring",
	"https://blog.example.org/post?utm_source=blog&utm_medium=referral",
}

var countries = []string{"US", "DE", "GB", "FR", "IN", "BR", "JP", ""}

var languages = []string{"en-US,en;q=0.9", "de-DE,de;q=0.8", "fr-FR", "ja", ""}

type seedLink struct {
	id     int64
	visits int
}

type DataGenerator struct {
	pool      *pgxpool.Pool
	processor *visit.Processor
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	gen := &DataGenerator{
		pool: pool,
		processor: visit.NewProcessor(
			postgres.NewLinkRepository(pool),
			postgres.NewBucketRepository(pool),
			postgres.NewVisitRepository(pool),
			geo.NopLocator{},
		),
	}

	if err := gen.clearData(ctx); err != nil {
		log.Fatalf("Failed to clear data: %v\n", err)
	}

	links, err := gen.insertLinks(ctx)
	if err != nil {
		log.Fatalf("Failed to insert links: %v\n", err)
	}

	processed, err := gen.insertVisitsParallel(ctx, links)
	if err != nil {
		log.Fatalf("Failed to insert visits: %v\n", err)
	}

	if err := gen.verifyData(ctx, processed); err != nil {
		log.Printf("Warning: Data verification failed: %v\n", err)
	}
}

func (g *DataGenerator) clearData(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, "TRUNCATE links, visits, visit_details RESTART IDENTITY CASCADE")
	return err
}

func (g *DataGenerator) insertLinks(ctx context.Context) ([]seedLink, error) {
	tiers := []struct {
		name   string
		count  int
		visits int
	}{
		{"hot", HOT_COUNT, HOT_VISITS},
		{"warm", WARM_COUNT, WARM_VISITS},
		{"cold", COLD_COUNT, COLD_VISITS},
	}

	total := HOT_COUNT + WARM_COUNT + COLD_COUNT
	addresses, err := generator.UniqueAddresses(total, generator.DefaultAddressLength)
	if err != nil {
		return nil, err
	}

	links := make([]seedLink, 0, total)
	next := 0
	for _, tier := range tiers {
		for start := 0; start < tier.count; start += BATCH_SIZE {
			end := min(start+BATCH_SIZE, tier.count)

			batch := &pgx.Batch{}
			for i := start; i < end; i++ {
				batch.Queue(
					`INSERT INTO links (address, target, enable_analytics, created_at)
					 VALUES ($1, $2, TRUE, $3) RETURNING id`,
					addresses[next],
					fmt.Sprintf("https://example.com/%s/%06d", tier.name, i),
					time.Now().Add(-SPREAD),
				)
				next++
			}

			br := g.pool.SendBatch(ctx, batch)
			for i := 0; i < batch.Len(); i++ {
				var id int64
				if err := br.QueryRow().Scan(&id); err != nil {
					br.Close()
					return nil, fmt.Errorf("batch insert failed: %w", err)
				}
				links = append(links, seedLink{id: id, visits: tier.visits})
			}
			br.Close()
		}
	}

	return links, nil
}

// insertVisitsParallel pushes synthetic visits through the same processor the
// queue workers use, so buckets and details stay consistent.
func (g *DataGenerator) insertVisitsParallel(ctx context.Context, links []seedLink) (int64, error) {
	events := make(chan domain.VisitEvent, NUM_WORKERS*BATCH_SIZE)
	var processed, failed atomic.Int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < NUM_WORKERS; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range events {
				if err := g.processor.Process(ctx, event); err != nil {
					failed.Add(1)
					continue
				}
				processed.Add(1)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Printf("Processed %d visits (%d failed)\n", processed.Load(), failed.Load())
			case <-done:
				return
			}
		}
	}()

	now := time.Now().UTC()
	for _, link := range links {
		for i := 0; i < link.visits; i++ {
			events <- randomEvent(link.id, now)
		}
	}
	close(events)
	wg.Wait()
	close(done)

	if n := failed.Load(); n > 0 {
		return processed.Load(), fmt.Errorf("%d visits failed to process", n)
	}
	return processed.Load(), nil
}

func randomEvent(linkID int64, now time.Time) domain.VisitEvent {
	return domain.VisitEvent{
		LinkID:         linkID,
		UserAgent:      userAgents[rand.IntN(len(userAgents))],
		IP:             fmt.Sprintf("203.0.%d.%d", rand.IntN(256), rand.IntN(256)),
		CountryHint:    countries[rand.IntN(len(countries))],
		Referrer:       referrers[rand.IntN(len(referrers))],
		AcceptLanguage: languages[rand.IntN(len(languages))],
		OccurredAt:     now.Add(-time.Duration(rand.Int64N(int64(SPREAD)))),
	}
}

func (g *DataGenerator) verifyData(ctx context.Context, processed int64) error {
	var bucketTotal, details, visitCount int64
	err := g.pool.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(total), 0) FROM visits),
			(SELECT COUNT(*) FROM visit_details),
			(SELECT COALESCE(SUM(visit_count), 0) FROM links)
	`).Scan(&bucketTotal, &details, &visitCount)
	if err != nil {
		return err
	}

	for name, got := range map[string]int64{"bucket total": bucketTotal, "details": details, "visit count": visitCount} {
		if got != processed {
			return fmt.Errorf("expected %s %d but got %d", name, processed, got)
		}
	}

	log.Printf("Seeded %d visits\n", processed)
	return nil
}
