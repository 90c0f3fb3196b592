//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("testdb"),
		testpostgres.WithUsername("testuser"),
		testpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)
	cfg.MaxConns = 32

	dbPool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	err = applyMigration(ctx, dbPool)
	require.NoError(t, err)

	cleanup := func() {
		dbPool.Close()
		pgContainer.Terminate(ctx)
	}

	return dbPool, cleanup
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	migrationPath := filepath.Join("..", "..", "..", "migrations", "0001_init.up.sql")
	migrationSQL, err := os.ReadFile(migrationPath)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, string(migrationSQL))
	return err
}

func createLink(t *testing.T, db *pgxpool.Pool, link *domain.Link) *domain.Link {
	t.Helper()
	if link.Address == "" {
		link.Address = "abc123"
	}
	if link.Target == "" {
		link.Target = "https://example.com"
	}
	require.NoError(t, postgres.NewLinkRepository(db).Create(context.Background(), link))
	return link
}
