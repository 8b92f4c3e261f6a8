package repository

import (
	"context"
	"fmt"

	"accidents-dw/internal/models"
	"accidents-dw/pkg/database"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// ReportRepository provides read-only aggregate queries over the warehouse.
// Accident counts use COUNT(DISTINCT id_staging) so fact fan-out does not
// inflate them.
type ReportRepository interface {
	AccidentsByYear(ctx context.Context) ([]*models.YearCount, error)
	AccidentsByRoad(ctx context.Context, filter RoadFilter) ([]*models.RoadCount, error)
	VictimsByType(ctx context.Context, year *int) ([]*models.VictimCount, error)
	TableCounts(ctx context.Context) ([]*models.TableCount, error)
	HealthCheck(ctx context.Context) error
}

// RoadFilter defines filters for the per-road report
type RoadFilter struct {
	Year  *int
	Limit int
}

// reportRepository implements ReportRepository
type reportRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ReportRepository {
	return &reportRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// AccidentsByYear counts distinct accidents per calendar year
func (r *reportRepository) AccidentsByYear(ctx context.Context) ([]*models.YearCount, error) {
	query := `
		SELECT d.ano, COUNT(DISTINCT f.id_staging) AS acidentes
		FROM fato_acidentes f
		JOIN dim_data d ON d.id_data = f.id_data
		GROUP BY d.ano
		ORDER BY d.ano
	`

	var rows []*models.YearCount
	if err := r.db.SelectContext(ctx, "report_by_year", &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count accidents by year: %w", err)
	}
	return rows, nil
}

// AccidentsByRoad counts distinct accidents per road segment, busiest first
func (r *reportRepository) AccidentsByRoad(ctx context.Context, filter RoadFilter) ([]*models.RoadCount, error) {
	query := `
		SELECT r.trecho, r.sentido, COUNT(DISTINCT f.id_staging) AS acidentes
		FROM fato_acidentes f
		JOIN dim_rodovia r ON r.id_rodovia = f.id_rodovia
		JOIN dim_data d ON d.id_data = f.id_data
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Year != nil {
		query += " AND d.ano = ?"
		args = append(args, *filter.Year)
	}

	query += " GROUP BY r.id_rodovia, r.trecho, r.sentido ORDER BY acidentes DESC, r.id_rodovia"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []*models.RoadCount
	if err := r.db.SelectContext(ctx, "report_by_road", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count accidents by road: %w", err)
	}
	return rows, nil
}

// VictimsByType totals victims per severity. Each victim row is counted once
// even when fan-out links it to several facts.
func (r *reportRepository) VictimsByType(ctx context.Context, year *int) ([]*models.VictimCount, error) {
	query := `
		SELECT vt.tipo_vitima, SUM(vt.quantidade) AS vitimas
		FROM dim_tipo_vitima vt
		WHERE EXISTS (
			SELECT 1
			FROM fato_acidentes f
			JOIN dim_data d ON d.id_data = f.id_data
			WHERE f.id_tipo_vitima = vt.id_tipo_vitima
	`
	args := []interface{}{}

	if year != nil {
		query += " AND d.ano = ?"
		args = append(args, *year)
	}

	query += `
		)
		GROUP BY vt.tipo_vitima
		ORDER BY vt.tipo_vitima
	`

	var rows []*models.VictimCount
	if err := r.db.SelectContext(ctx, "report_victims", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to total victims by type: %w", err)
	}
	return rows, nil
}

// TableCounts returns the row count of staging and every warehouse table
func (r *reportRepository) TableCounts(ctx context.Context) ([]*models.TableCount, error) {
	tables := append([]string{"stg_acidentes"}, warehouseTables...)

	counts := make([]*models.TableCount, 0, len(tables))
	for _, table := range tables {
		tc := &models.TableCount{Table: table}
		if err := r.db.GetContext(ctx, "count_"+table, &tc.Rows, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts = append(counts, tc)
	}

	return counts, nil
}

// HealthCheck performs a repository health check
func (r *reportRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
