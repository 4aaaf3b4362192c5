package database

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/imposter/internal/game/storetest"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/words"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDatabaseEnv names a disposable database. Its tables are truncated
// between tests.
const testDatabaseEnv = "IMPOSTER_TEST_DATABASE_URL"

// testPool migrates the test database to the latest schema and connects.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s is not set", testDatabaseEnv)
	}

	m, err := migrate.New("file://../../db/migrations", dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	pool, err := Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// freshStore empties every table and seeds the catalog with pairs.
func freshStore(t *testing.T, pool *pgxpool.Pool, pairs []models.WordPair) *Store {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `TRUNCATE lobbies, word_pairs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	s := NewStore(pool)
	n, err := s.SeedWordPairs(ctx, pairs)
	require.NoError(t, err)
	require.Equal(t, len(pairs), n)
	return s
}

func TestStoreContract(t *testing.T) {
	pool := testPool(t)
	storetest.Run(t, func(t *testing.T, pairs []models.WordPair) storetest.Store {
		return freshStore(t, pool, pairs)
	})
}

func TestCountWordPairs(t *testing.T) {
	pool := testPool(t)
	s := freshStore(t, pool, words.Default[:4])

	n, err := s.CountWordPairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
