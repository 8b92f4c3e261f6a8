package services

import (
	"context"
	"fmt"
	"time"

	"accidents-dw/internal/models"
	"accidents-dw/internal/repository"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// WarehouseService rebuilds the star schema from staging
type WarehouseService struct {
	staging   repository.StagingRepository
	warehouse repository.WarehouseRepository
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// DimensionResult holds rows inserted per dimension table
type DimensionResult struct {
	StagingRows int
	Rows        map[string]int
	Duration    time.Duration
}

// NewWarehouseService creates a new warehouse service
func NewWarehouseService(staging repository.StagingRepository, warehouse repository.WarehouseRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WarehouseService {
	return &WarehouseService{
		staging:   staging,
		warehouse: warehouse,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Reset clears every fact and dimension row. Running it on an empty
// warehouse is a no-op.
func (s *WarehouseService) Reset(ctx context.Context) error {
	timer := s.metrics.StageTimer(models.StageReset)
	if err := s.warehouse.Reset(ctx); err != nil {
		return err
	}
	duration := timer.ObserveDuration()

	s.logger.Info(ctx, "[WAREHOUSE_RESET] Fact and dimension tables cleared", logging.Fields{
		"duration_ms": duration.Milliseconds(),
	})
	return nil
}

// BuildDimensions derives all five dimensions from the full staging set and
// inserts each in its own transaction. A failure is returned as a
// *models.StageError naming the dimension.
func (s *WarehouseService) BuildDimensions(ctx context.Context) (*DimensionResult, error) {
	startTime := time.Now()

	records, err := s.staging.ListAll(ctx)
	if err != nil {
		return nil, &models.StageError{Stage: models.StageDimensions, Err: fmt.Errorf("failed to read staging: %w", err)}
	}

	s.logger.Info(ctx, "[DIM_BUILD_START] Building dimensions", logging.Fields{
		"staging_rows": len(records),
	})

	result := &DimensionResult{
		StagingRows: len(records),
		Rows:        make(map[string]int),
	}

	steps := []struct {
		stage string
		build func() (int, error)
	}{
		{models.StageDimRodovia, func() (int, error) {
			rows := DeriveRoads(records)
			return len(rows), s.warehouse.InsertRoads(ctx, rows)
		}},
		{models.StageDimData, func() (int, error) {
			rows, err := DeriveDates(records)
			if err != nil {
				return 0, err
			}
			return len(rows), s.warehouse.InsertDates(ctx, rows)
		}},
		{models.StageDimTipoAcidente, func() (int, error) {
			rows := DeriveAccidentTypes(records)
			return len(rows), s.warehouse.InsertAccidentTypes(ctx, rows)
		}},
		{models.StageDimVeiculo, func() (int, error) {
			rows := UnpivotVehicles(records)
			return len(rows), s.warehouse.InsertVehicles(ctx, rows)
		}},
		{models.StageDimTipoVitima, func() (int, error) {
			rows, err := UnpivotVictims(records)
			if err != nil {
				return 0, err
			}
			return len(rows), s.warehouse.InsertVictims(ctx, rows)
		}},
	}

	for _, step := range steps {
		timer := s.metrics.StageTimer(step.stage)
		n, err := step.build()
		if err != nil {
			s.logger.Error(ctx, "[DIM_BUILD_ERROR] Dimension build failed", logging.Fields{
				"dimension": step.stage,
			}, err)
			return nil, &models.StageError{Stage: step.stage, Err: err}
		}
		duration := timer.ObserveDuration()

		result.Rows[step.stage] = n
		s.metrics.RecordDimensionRows(step.stage, n)

		s.logger.Info(ctx, "[DIM_BUILD_COMPLETE] Dimension built", logging.Fields{
			"dimension":   step.stage,
			"rows":        n,
			"duration_ms": duration.Milliseconds(),
		})
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// AssembleFacts writes the fact table and returns the number of fact rows
func (s *WarehouseService) AssembleFacts(ctx context.Context) (int64, error) {
	timer := s.metrics.StageTimer(models.StageFacts)
	n, err := s.warehouse.AssembleFacts(ctx)
	if err != nil {
		return 0, err
	}
	duration := timer.ObserveDuration()

	s.metrics.FactRowsTotal.Add(float64(n))
	s.logger.Info(ctx, "[FACT_ASSEMBLY_COMPLETE] Fact table assembled", logging.Fields{
		"fact_rows":   n,
		"duration_ms": duration.Milliseconds(),
	})
	return n, nil
}

// Verify fails with a *models.IntegrityError when any fact row's foreign key
// does not resolve.
func (s *WarehouseService) Verify(ctx context.Context) error {
	dangling, err := s.warehouse.DanglingFactReferences(ctx)
	if err != nil {
		return err
	}
	if len(dangling) > 0 {
		return &models.IntegrityError{Dangling: dangling}
	}

	s.logger.Info(ctx, "[WAREHOUSE_VERIFIED] All fact references resolve", logging.Fields{})
	return nil
}
