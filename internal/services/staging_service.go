package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"accidents-dw/internal/models"
	"accidents-dw/internal/repository"
	"accidents-dw/internal/source"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// StagingService loads the source CSV directory into the staging relation
type StagingService struct {
	repo    repository.StagingRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	newID   func() string
}

// StagingResult contains staging load statistics
type StagingResult struct {
	Files     []*FileResult
	TotalRows int
	Duration  time.Duration
}

// FileResult contains per-file staging statistics
type FileResult struct {
	Path           string
	Name           string
	Encoding       source.Encoding
	Rows           int
	UnknownColumns []string
}

// NewStagingService creates a new staging service
func NewStagingService(repo repository.StagingRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StagingService {
	return &StagingService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		newID:   uuid.NewString,
	}
}

// LoadDirectory replaces the staging contents with every CSV file in dataDir.
// All files are read and decoded before the database is touched, so an
// acquisition error leaves staging as it was.
func (s *StagingService) LoadDirectory(ctx context.Context, dataDir string, batchSize int) (*StagingResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[STAGING_START] Starting staging load", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	files, err := source.Discover(dataDir)
	if err != nil {
		s.logger.Error(ctx, "[STAGING_DISCOVERY_ERROR] Source files unavailable", logging.Fields{
			"data_dir": dataDir,
			"stage":    "FILE_DISCOVERY",
		}, err)
		return nil, err
	}

	s.logger.Info(ctx, "[STAGING_FILES] Found data files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	result := &StagingResult{}
	var records []*models.StagingRecord

	for _, filePath := range files {
		fileLog := s.logger.WithFields(logging.Fields{
			"file_path": filePath,
			"stage":     "FILE_PROCESSING",
		})

		file, err := source.ReadFile(filePath)
		if err != nil {
			fileLog.Error(ctx, "[STAGING_FILE_ERROR] File could not be read", nil, err)
			return nil, err
		}

		for _, rec := range file.Records {
			rec.ID = s.newID()
		}
		records = append(records, file.Records...)

		if len(file.UnknownColumns) > 0 {
			fileLog.Warn(ctx, "[STAGING_UNKNOWN_COLUMNS] Ignoring columns without a staging field", logging.Fields{
				"columns": file.UnknownColumns,
			})
		}

		s.metrics.RecordStagingFile(string(file.Encoding))
		result.Files = append(result.Files, &FileResult{
			Path:           file.Path,
			Name:           file.Name,
			Encoding:       file.Encoding,
			Rows:           len(file.Records),
			UnknownColumns: file.UnknownColumns,
		})

		fileLog.Info(ctx, "[STAGING_FILE_READ] File decoded", logging.Fields{
			"nome_arquivo": file.Name,
			"encoding":     string(file.Encoding),
			"rows":         len(file.Records),
		})
	}

	if err := s.repo.Replace(ctx, records, batchSize); err != nil {
		return nil, fmt.Errorf("failed to load staging: %w", err)
	}

	result.TotalRows = len(records)
	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[STAGING_COMPLETE] Staging load completed", logging.Fields{
		"total_files":      len(result.Files),
		"total_rows":       result.TotalRows,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, nil
}
