package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"accidents-dw/internal/models"
	"accidents-dw/pkg/database"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// StagingRepository provides data access for the stg_acidentes relation
type StagingRepository interface {
	// Replace truncates staging, resets its identity sequence and loads records,
	// all in one transaction.
	Replace(ctx context.Context, records []*models.StagingRecord, batchSize int) error
	ListAll(ctx context.Context) ([]*models.StagingRecord, error)
	Count(ctx context.Context) (int, error)
}

var (
	stagingColumnList = strings.Join(models.StagingColumns, ", ")

	insertStagingQuery = fmt.Sprintf(
		"INSERT INTO stg_acidentes (%s) VALUES (:%s)",
		stagingColumnList,
		strings.Join(models.StagingColumns, ", :"),
	)
)

// stagingRepository implements StagingRepository
type stagingRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStagingRepository creates a new staging repository
func NewStagingRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) StagingRepository {
	return &stagingRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Replace swaps the staging contents for records
func (r *stagingRepository) Replace(ctx context.Context, records []*models.StagingRecord, batchSize int) error {
	if batchSize <= 0 {
		return fmt.Errorf("invalid batch size %d", batchSize)
	}

	timer := time.Now()
	method := "insert"
	if r.db.DriverName() == database.DriverPostgres {
		method = "copy"
	}

	err := r.db.WithTx(ctx, "staging_replace", func(tx *sqlx.Tx) error {
		if err := r.truncate(ctx, tx); err != nil {
			return err
		}
		if method == "copy" {
			return r.copyIn(ctx, tx, records)
		}
		return r.insertBatches(ctx, tx, records, batchSize)
	})
	if err != nil {
		return fmt.Errorf("failed to replace staging rows: %w", err)
	}

	r.metrics.StagingRowsTotal.Add(float64(len(records)))
	r.logger.Debug(ctx, "[REPO_STAGING_REPLACE] Staging relation replaced", logging.Fields{
		"rows":        len(records),
		"method":      method,
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return nil
}

func (r *stagingRepository) truncate(ctx context.Context, tx *sqlx.Tx) error {
	var stmts []string
	if r.db.Dialect() == database.DialectSQLite {
		stmts = []string{
			"DELETE FROM stg_acidentes",
			"DELETE FROM sqlite_sequence WHERE name = 'stg_acidentes'",
		}
	} else {
		stmts = []string{"TRUNCATE TABLE stg_acidentes RESTART IDENTITY"}
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to truncate staging: %w", err)
		}
	}
	return nil
}

// copyIn streams rows through the Postgres COPY protocol (lib/pq only)
func (r *stagingRepository) copyIn(ctx context.Context, tx *sqlx.Tx, records []*models.StagingRecord) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("stg_acidentes", models.StagingColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Values()...); err != nil {
			return fmt.Errorf("failed to copy staging row %s: %w", rec.ID, err)
		}
	}

	// an empty Exec flushes the buffered rows
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush copy: %w", err)
	}

	r.metrics.StagingBatchSize.Observe(float64(len(records)))
	return nil
}

// insertBatches writes multi-row INSERT statements of at most batchSize rows
func (r *stagingRepository) insertBatches(ctx context.Context, tx *sqlx.Tx, records []*models.StagingRecord, batchSize int) error {
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		batch := records[start:end]

		if _, err := tx.NamedExecContext(ctx, insertStagingQuery, batch); err != nil {
			return fmt.Errorf("failed to insert staging rows %d-%d: %w", start, end, err)
		}
		r.metrics.StagingBatchSize.Observe(float64(len(batch)))
	}
	return nil
}

// ListAll returns every staging row in load order
func (r *stagingRepository) ListAll(ctx context.Context) ([]*models.StagingRecord, error) {
	query := fmt.Sprintf("SELECT seq, %s FROM stg_acidentes ORDER BY seq", stagingColumnList)

	var records []*models.StagingRecord
	if err := r.db.SelectContext(ctx, "list_staging", &records, query); err != nil {
		return nil, fmt.Errorf("failed to list staging rows: %w", err)
	}

	return records, nil
}

// Count returns the number of staging rows
func (r *stagingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, "count_staging", &n, "SELECT COUNT(*) FROM stg_acidentes"); err != nil {
		return 0, fmt.Errorf("failed to count staging rows: %w", err)
	}
	return n, nil
}
