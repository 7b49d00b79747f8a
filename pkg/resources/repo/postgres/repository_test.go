package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
)

func setupTestDB(t *testing.T) *Repository {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewWithPool(pool)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	_, err = pool.Exec(context.Background(), `DELETE FROM resource_tree`)
	require.NoError(t, err)
	return repo
}

func TestPostgresRepository_RoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	_, err := repo.LoadTree(ctx)
	assert.ErrorIs(t, err, resources.ErrNotFound)

	first := resources.NewFolder("Resources", resources.NewFolder("Notes"))
	require.NoError(t, repo.ReplaceTree(ctx, first))

	second := resources.NewFolder("Resources",
		resources.NewFile("Week 1", "https://cdn.example.com/document/v1/portal/resources/w1.pdf"))
	require.NoError(t, repo.ReplaceTree(ctx, second))

	loaded, err := repo.LoadTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, loaded)

	var rows int
	require.NoError(t, repo.pool.QueryRow(ctx, `SELECT count(*) FROM resource_tree`).Scan(&rows))
	assert.Equal(t, 1, rows)
}
