package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"accidents-dw/internal/models"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// Stage selectors accepted by RunOptions.Stage
const (
	RunAll       = "all"
	RunStaging   = "staging"
	RunWarehouse = "warehouse"
)

// RunOptions configures one pipeline run
type RunOptions struct {
	DataDir   string
	BatchSize int
	// Stage is RunAll (default), RunStaging or RunWarehouse
	Stage string
}

// RunResult summarises a pipeline run
type RunResult struct {
	RunID      string
	Staging    *StagingResult
	Dimensions *DimensionResult
	FactRows   int64
	Duration   time.Duration
}

// PipelineService sequences staging load, reset, dimension build, fact
// assembly and verification. Stages run strictly one after another; the first
// failure aborts the run. There is no retry and no resume.
type PipelineService struct {
	staging   *StagingService
	warehouse *WarehouseService
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(staging *StagingService, warehouse *WarehouseService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PipelineService {
	return &PipelineService{
		staging:   staging,
		warehouse: warehouse,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Run executes the selected stages. Any failure is returned as a
// *models.StageError naming the stage that failed.
func (p *PipelineService) Run(ctx context.Context, opts RunOptions) (result *RunResult, err error) {
	startTime := time.Now()

	if opts.Stage == "" {
		opts.Stage = RunAll
	}
	if opts.Stage != RunAll && opts.Stage != RunStaging && opts.Stage != RunWarehouse {
		return nil, fmt.Errorf("unknown pipeline stage %q", opts.Stage)
	}

	runID := logging.CorrelationID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithCorrelationID(ctx, runID)
	}

	result = &RunResult{RunID: runID}

	p.logger.Info(ctx, "[PIPELINE_START] Pipeline run started", logging.Fields{
		"run_id":     runID,
		"stage":      opts.Stage,
		"data_dir":   opts.DataDir,
		"batch_size": opts.BatchSize,
	})

	defer func() {
		result.Duration = time.Since(startTime)
		if err != nil {
			var stageErr *models.StageError
			if errors.As(err, &stageErr) {
				p.metrics.RecordPipelineError(stageErr.Stage)
			}
			p.metrics.RecordPipelineRun("failure")
			p.logger.Error(ctx, "[PIPELINE_FAILED] Pipeline run aborted", logging.Fields{
				"run_id":           runID,
				"duration_seconds": result.Duration.Seconds(),
			}, err)
			return
		}
		p.metrics.RecordPipelineRun("success")
		p.logger.Info(ctx, "[PIPELINE_COMPLETE] Pipeline run completed", logging.Fields{
			"run_id":           runID,
			"fact_rows":        result.FactRows,
			"duration_seconds": result.Duration.Seconds(),
		})
	}()

	if opts.Stage == RunAll || opts.Stage == RunStaging {
		timer := p.metrics.StageTimer(models.StageStaging)
		staged, err := p.staging.LoadDirectory(ctx, opts.DataDir, opts.BatchSize)
		if err != nil {
			return result, &models.StageError{Stage: models.StageStaging, Err: err}
		}
		timer.ObserveDuration()
		result.Staging = staged
	}

	if opts.Stage == RunStaging {
		return result, nil
	}

	if err := p.warehouse.Reset(ctx); err != nil {
		return result, &models.StageError{Stage: models.StageReset, Err: err}
	}

	// BuildDimensions already names the failing dimension
	dims, err := p.warehouse.BuildDimensions(ctx)
	if err != nil {
		return result, err
	}
	result.Dimensions = dims

	facts, err := p.warehouse.AssembleFacts(ctx)
	if err != nil {
		return result, &models.StageError{Stage: models.StageFacts, Err: err}
	}
	result.FactRows = facts

	if err := p.warehouse.Verify(ctx); err != nil {
		return result, &models.StageError{Stage: models.StageVerify, Err: err}
	}

	return result, nil
}
