package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

// TrackingAnalyticsRepository describes the aggregations backing the
// analytics endpoint.
type TrackingAnalyticsRepository interface {
	DayCounts(ctx context.Context, day time.Time) (entries, exits int, err error)
	UniqueVisitors(ctx context.Context, day time.Time) (int, error)
	HourlyEntries(ctx context.Context, day time.Time) ([]models.HourlyCount, error)
	DepartmentBreakdown(ctx context.Context, day time.Time) ([]models.DepartmentCount, error)
}

type liveCounter interface {
	CountLive(ctx context.Context) (int, error)
}

// AnalyticsService provides read-optimised occupancy analytics with cache
// integration.
type AnalyticsService struct {
	repo     TrackingAnalyticsRepository
	live     liveCounter
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo TrackingAnalyticsRepository, live liveCounter, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AnalyticsService{
		repo:     repo,
		live:     live,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Daily returns occupancy analytics for one day. The boolean indicates
// whether the payload originated from cache.
func (s *AnalyticsService) Daily(ctx context.Context, day time.Time) (*models.TrackingAnalytics, bool, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	cacheKey := makeAnalyticsCacheKey("tracking", day.Format("2006-01-02"))

	var cached models.TrackingAnalytics
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get tracking analytics cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	entries, exits, err := s.repo.DayCounts(ctx, day)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate day counts")
	}
	visitors, err := s.repo.UniqueVisitors(ctx, day)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unique visitors")
	}
	hourly, err := s.repo.HourlyEntries(ctx, day)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate hourly entries")
	}
	departments, err := s.repo.DepartmentBreakdown(ctx, day)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate departments")
	}
	inside, err := s.live.CountLive(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count occupancy")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("tracking_analytics", time.Since(start))
	}

	analytics := &models.TrackingAnalytics{
		Date:            day.Format("2006-01-02"),
		EntryCount:      entries,
		ExitCount:       exits,
		UniqueVisitors:  visitors,
		CurrentlyInside: inside,
		HourlyEntries:   hourly,
		Departments:     departments,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, analytics, s.cacheTTL); err != nil {
			s.logger.Warn("cache tracking analytics", zap.Error(err))
		}
	}
	return analytics, false, nil
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}
