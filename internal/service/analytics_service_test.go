package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
)

type mockTrackingAnalyticsRepo struct {
	entries     int
	exits       int
	visitors    int
	hourly      []models.HourlyCount
	departments []models.DepartmentCount
	calls       int
}

func (m *mockTrackingAnalyticsRepo) DayCounts(ctx context.Context, day time.Time) (int, int, error) {
	m.calls++
	return m.entries, m.exits, nil
}

func (m *mockTrackingAnalyticsRepo) UniqueVisitors(ctx context.Context, day time.Time) (int, error) {
	return m.visitors, nil
}

func (m *mockTrackingAnalyticsRepo) HourlyEntries(ctx context.Context, day time.Time) ([]models.HourlyCount, error) {
	return m.hourly, nil
}

func (m *mockTrackingAnalyticsRepo) DepartmentBreakdown(ctx context.Context, day time.Time) ([]models.DepartmentCount, error) {
	return m.departments, nil
}

func TestAnalyticsDaily(t *testing.T) {
	repo := &mockTrackingAnalyticsRepo{
		entries:  42,
		exits:    40,
		visitors: 31,
		hourly: []models.HourlyCount{
			{Hour: 9, Count: 12},
			{Hour: 14, Count: 18},
		},
		departments: []models.DepartmentCount{{Department: "CSE", Count: 20}},
	}
	occupancy := newMockOccupancyRepo()
	occupancy.live["stu-1"] = &models.LiveOccupancy{StudentID: "stu-1"}
	occupancy.live["stu-2"] = &models.LiveOccupancy{StudentID: "stu-2"}

	svc := NewAnalyticsService(repo, occupancy, nil, nil, zap.NewNop(), time.Minute)

	day := time.Date(2026, 3, 4, 17, 30, 0, 0, time.UTC)
	analytics, fromCache, err := svc.Daily(context.Background(), day)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 42, analytics.EntryCount)
	assert.Equal(t, 40, analytics.ExitCount)
	assert.Equal(t, 31, analytics.UniqueVisitors)
	assert.Equal(t, 2, analytics.CurrentlyInside)
	assert.Len(t, analytics.HourlyEntries, 2)
	assert.Equal(t, "2026-03-04", analytics.Date)
}

func TestAnalyticsCacheKeyShape(t *testing.T) {
	assert.Equal(t, "analytics:tracking:2026-03-04", makeAnalyticsCacheKey("tracking", "2026-03-04"))
	assert.Equal(t, "analytics:tracking", makeAnalyticsCacheKey("tracking", ""))
}
