package analytics_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/catalogstudio/internal/analytics"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("catalogstudio_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pgContainer.Terminate(ctx)) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestPostgresSink_IncrementAccumulates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	sink := analytics.NewPostgresSink(setupTestDB(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sink.IncrementDaily(ctx, analytics.MetricImagesGenerated, 1))
		}()
	}
	wg.Wait()
	require.NoError(t, sink.IncrementDaily(ctx, analytics.MetricVideosGenerated, 2))

	counts, err := sink.Daily(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(10), counts[analytics.MetricImagesGenerated])
	assert.Equal(t, int64(2), counts[analytics.MetricVideosGenerated])

	yesterday, err := sink.Daily(ctx, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, yesterday)
}

func TestMemorySink(t *testing.T) {
	s := analytics.NewMemorySink()
	require.NoError(t, s.IncrementDaily(context.Background(), analytics.MetricImagesGenerated, 2))
	require.NoError(t, s.IncrementDaily(context.Background(), analytics.MetricImagesGenerated, 1))
	assert.Equal(t, 3, s.Count(analytics.MetricImagesGenerated))
	assert.Equal(t, 0, s.Count(analytics.MetricVideosGenerated))
}

func TestNopSink(t *testing.T) {
	assert.NoError(t, analytics.NopSink{}.IncrementDaily(context.Background(), "anything", 1))
}
