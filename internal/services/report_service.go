package services

import (
	"context"
	"time"

	"accidents-dw/internal/models"
	"accidents-dw/internal/repository"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// Upper bound on rows returned by the per-road report
const maxRoadReportLimit = 1000

// ReportService answers read-only warehouse queries
type ReportService struct {
	repo    repository.ReportRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewReportService creates a new report service
func NewReportService(repo repository.ReportRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ReportService {
	return &ReportService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// AccidentsByYear retrieves distinct accident counts per year
func (s *ReportService) AccidentsByYear(ctx context.Context) ([]*models.YearCount, error) {
	return s.repo.AccidentsByYear(ctx)
}

// AccidentsByRoad retrieves distinct accident counts per road segment.
// The limit is clamped to [1, 1000]; zero means the maximum.
func (s *ReportService) AccidentsByRoad(ctx context.Context, filter repository.RoadFilter) ([]*models.RoadCount, error) {
	if filter.Limit <= 0 || filter.Limit > maxRoadReportLimit {
		filter.Limit = maxRoadReportLimit
	}
	return s.repo.AccidentsByRoad(ctx, filter)
}

// VictimsByType retrieves victim totals per severity, optionally for one year
func (s *ReportService) VictimsByType(ctx context.Context, year *int) ([]*models.VictimCount, error) {
	return s.repo.VictimsByType(ctx, year)
}

// TableCounts retrieves row counts for staging and every warehouse table
func (s *ReportService) TableCounts(ctx context.Context) ([]*models.TableCount, error) {
	startTime := time.Now()

	counts, err := s.repo.TableCounts(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "[REPORT_TABLE_COUNTS] Table counts retrieved", logging.Fields{
		"tables":      len(counts),
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	return counts, nil
}

// HealthCheck verifies the warehouse is reachable
func (s *ReportService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
