// Package analytics records daily usage counters.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	MetricImagesGenerated  = "images_generated"
	MetricVideosGenerated  = "videos_generated"
	MetricGenerationFailed = "generation_failed"
	MetricJobsSubmitted    = "jobs_submitted"
)

// Sink receives best-effort usage counters. Callers log and ignore errors.
type Sink interface {
	IncrementDaily(ctx context.Context, metric string, amount int) error
}

// PostgresSink upserts counters into analytics_daily keyed by UTC day.
type PostgresSink struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool, now: time.Now}
}

func (s *PostgresSink) IncrementDaily(ctx context.Context, metric string, amount int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analytics_daily (day, metric, count, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (day, metric) DO UPDATE SET
		   count = analytics_daily.count + EXCLUDED.count,
		   updated_at = NOW()`,
		dayOf(s.now()), metric, amount)
	if err != nil {
		return fmt.Errorf("increment daily %s: %w", metric, err)
	}
	return nil
}

// Daily returns every counter recorded for the given day.
func (s *PostgresSink) Daily(ctx context.Context, day time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT metric, count FROM analytics_daily WHERE day = $1`, dayOf(day))
	if err != nil {
		return nil, fmt.Errorf("daily analytics: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var metric string
		var count int64
		if err := rows.Scan(&metric, &count); err != nil {
			return nil, fmt.Errorf("scan daily analytics: %w", err)
		}
		out[metric] = count
	}
	return out, rows.Err()
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NopSink discards every counter.
type NopSink struct{}

func (NopSink) IncrementDaily(context.Context, string, int) error { return nil }

// MemorySink keeps counters in process. Used by tooling and tests.
type MemorySink struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{counts: map[string]int{}}
}

func (s *MemorySink) IncrementDaily(_ context.Context, metric string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[metric] += amount
	return nil
}

func (s *MemorySink) Count(metric string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[metric]
}
