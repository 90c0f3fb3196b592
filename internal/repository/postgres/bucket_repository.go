package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	browserColumns = prefixed("br_", domain.Browsers)
	osColumns      = prefixed("os_", domain.OSes)

	bucketColumns = "id, link_id, created_at, " +
		strings.Join(browserColumns, ", ") + ", " +
		strings.Join(osColumns, ", ") +
		", countries, referrers, total"
)

func prefixed(prefix string, names []string) []string {
	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = prefix + name
	}
	return cols
}

// BucketRepository stores the hourly aggregate rows of each link.
type BucketRepository struct {
	db *pgxpool.Pool
}

func NewBucketRepository(db *pgxpool.Pool) *BucketRepository {
	return &BucketRepository{db: db}
}

// Record merges one visit into the bucket of the hour containing at. The
// row is created if missing, then locked, merged and written back inside one
// transaction, so concurrent writers to the same hour serialize on the lock.
func (r *BucketRepository) Record(ctx context.Context, linkID int64, at time.Time, browser, os, country, referrer string) error {
	hour := domain.TruncateHour(at)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO visits (link_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (link_id, created_at) DO NOTHING
	`, linkID, hour)
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}

	query := `SELECT ` + bucketColumns + ` FROM visits WHERE link_id = $1 AND created_at = $2 FOR UPDATE`
	bucket, err := scanBucket(tx.QueryRow(ctx, query, linkID, hour))
	if err != nil {
		return fmt.Errorf("lock bucket: %w", err)
	}

	bucket.Add(browser, os, country, referrer)

	if err := updateBucket(ctx, tx, bucket); err != nil {
		return fmt.Errorf("update bucket: %w", err)
	}

	return tx.Commit(ctx)
}

func updateBucket(ctx context.Context, tx pgx.Tx, b *domain.Bucket) error {
	sets := make([]string, 0, len(browserColumns)+len(osColumns)+4)
	args := []any{b.ID}

	for i, name := range domain.Browsers {
		args = append(args, b.Browser[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", browserColumns[i], len(args)))
	}
	for i, name := range domain.OSes {
		args = append(args, b.OS[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", osColumns[i], len(args)))
	}

	args = append(args, b.Countries)
	sets = append(sets, fmt.Sprintf("countries = $%d", len(args)))
	args = append(args, b.Referrers)
	sets = append(sets, fmt.Sprintf("referrers = $%d", len(args)))
	args = append(args, b.Total)
	sets = append(sets, fmt.Sprintf("total = $%d", len(args)))
	sets = append(sets, "updated_at = NOW()")

	_, err := tx.Exec(ctx, `UPDATE visits SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	return err
}

func scanBucket(row pgx.Row) (*domain.Bucket, error) {
	var id, linkID, total int64
	var hour time.Time
	browsers := make([]int64, len(domain.Browsers))
	oses := make([]int64, len(domain.OSes))
	countries := map[string]int64{}
	referrers := map[string]int64{}

	dest := []any{&id, &linkID, &hour}
	for i := range browsers {
		dest = append(dest, &browsers[i])
	}
	for i := range oses {
		dest = append(dest, &oses[i])
	}
	dest = append(dest, &countries, &referrers, &total)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	b := domain.NewBucket(linkID, hour.UTC())
	b.ID = id
	b.Total = total
	for i, name := range domain.Browsers {
		b.Browser[name] = browsers[i]
	}
	for i, name := range domain.OSes {
		b.OS[name] = oses[i]
	}
	b.Countries = countries
	b.Referrers = referrers
	return b, nil
}

// Stream calls fn for each bucket of the link newer than since, oldest first.
func (r *BucketRepository) Stream(ctx context.Context, linkID int64, since time.Time, fn func(*domain.Bucket) error) error {
	query := `SELECT ` + bucketColumns + ` FROM visits WHERE link_id = $1 AND created_at > $2 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, linkID, since)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}

	return rows.Err()
}

// Get returns the bucket of one hour, ErrNoRows when nothing was recorded.
func (r *BucketRepository) Get(ctx context.Context, linkID int64, hour time.Time) (*domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM visits WHERE link_id = $1 AND created_at = $2`
	return scanBucket(r.db.QueryRow(ctx, query, linkID, domain.TruncateHour(hour)))
}
