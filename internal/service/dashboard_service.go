package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/authz"
	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

type statsCollector interface {
	CollectDashboard(ctx context.Context) (*models.DashboardStats, error)
}

// DashboardService serves the admin overview with a short Redis cache in
// front of the aggregate queries.
type DashboardService struct {
	stats  statsCollector
	cache  unreadCache
	logger *zap.Logger
	ttl    time.Duration
}

// NewDashboardService constructs the service.
func NewDashboardService(stats statsCollector, cache unreadCache, logger *zap.Logger, ttl time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DashboardService{stats: stats, cache: cache, logger: logger, ttl: ttl}
}

const dashboardCacheKey = "dashboard:stats"

// Stats returns the dashboard aggregates. ADMIN only.
func (s *DashboardService) Stats(ctx context.Context, principal models.Principal) (*models.DashboardStats, error) {
	if !authz.Allowed(principal.Roles, authz.OpDashboardView) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "dashboard requires ADMIN")
	}

	var cached models.DashboardStats
	if err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("dashboard cache read failed", zap.Error(err))
	}

	stats, err := s.stats.CollectDashboard(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect dashboard stats")
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, stats, s.ttl); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return stats, nil
}
