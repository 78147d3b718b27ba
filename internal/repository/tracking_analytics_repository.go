package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/library-api/internal/models"
)

// TrackingAnalyticsRepository serves read-only aggregations over the
// occupancy ledger for the dashboard.
type TrackingAnalyticsRepository struct {
	db *sqlx.DB
}

// NewTrackingAnalyticsRepository constructs the repository.
func NewTrackingAnalyticsRepository(db *sqlx.DB) *TrackingAnalyticsRepository {
	return &TrackingAnalyticsRepository{db: db}
}

// DayCounts returns entry and exit totals for the given day.
func (r *TrackingAnalyticsRepository) DayCounts(ctx context.Context, day time.Time) (entries, exits int, err error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE kind = 'entry') AS entries,
	COUNT(*) FILTER (WHERE kind = 'exit') AS exits
FROM occupancy_events
WHERE recorded_at >= $1 AND recorded_at < $2`
	start := day.Truncate(24 * time.Hour)
	var row struct {
		Entries int `db:"entries"`
		Exits   int `db:"exits"`
	}
	if err := r.db.GetContext(ctx, &row, query, start, start.Add(24*time.Hour)); err != nil {
		return 0, 0, fmt.Errorf("day counts: %w", err)
	}
	return row.Entries, row.Exits, nil
}

// UniqueVisitors counts distinct students with an entry on the given day.
func (r *TrackingAnalyticsRepository) UniqueVisitors(ctx context.Context, day time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT student_id)
FROM occupancy_events
WHERE kind = 'entry' AND recorded_at >= $1 AND recorded_at < $2`
	start := day.Truncate(24 * time.Hour)
	var count int
	if err := r.db.GetContext(ctx, &count, query, start, start.Add(24*time.Hour)); err != nil {
		return 0, fmt.Errorf("unique visitors: %w", err)
	}
	return count, nil
}

// HourlyEntries returns the entry histogram bucketed by hour for the day.
func (r *TrackingAnalyticsRepository) HourlyEntries(ctx context.Context, day time.Time) ([]models.HourlyCount, error) {
	const query = `SELECT EXTRACT(HOUR FROM recorded_at)::int AS hour, COUNT(*) AS count
FROM occupancy_events
WHERE kind = 'entry' AND recorded_at >= $1 AND recorded_at < $2
GROUP BY hour ORDER BY hour`
	start := day.Truncate(24 * time.Hour)
	buckets := []models.HourlyCount{}
	if err := r.db.SelectContext(ctx, &buckets, query, start, start.Add(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("hourly entries: %w", err)
	}
	return buckets, nil
}

// DepartmentBreakdown aggregates the day's entries per department.
func (r *TrackingAnalyticsRepository) DepartmentBreakdown(ctx context.Context, day time.Time) ([]models.DepartmentCount, error) {
	const query = `SELECT s.department, COUNT(*) AS count
FROM occupancy_events oe
JOIN students s ON s.id = oe.student_id
WHERE oe.kind = 'entry' AND oe.recorded_at >= $1 AND oe.recorded_at < $2
GROUP BY s.department ORDER BY count DESC`
	start := day.Truncate(24 * time.Hour)
	rows := []models.DepartmentCount{}
	if err := r.db.SelectContext(ctx, &rows, query, start, start.Add(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("department breakdown: %w", err)
	}
	return rows, nil
}
