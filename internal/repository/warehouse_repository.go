package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"accidents-dw/internal/models"
	"accidents-dw/pkg/database"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// dimensionBatchSize bounds rows per multi-row dimension INSERT
const dimensionBatchSize = 500

// Warehouse tables in deletion order: the fact table first, then the
// dimensions it references.
var warehouseTables = []string{
	"fato_acidentes",
	"dim_tipo_vitima",
	"dim_veiculo",
	"dim_tipo_acidente",
	"dim_data",
	"dim_rodovia",
}

// WarehouseRepository provides data access for the star schema
type WarehouseRepository interface {
	// Reset deletes every fact and dimension row in one transaction
	Reset(ctx context.Context) error

	// Dimension inserts, each in its own transaction
	InsertRoads(ctx context.Context, roads []*models.DimRodovia) error
	InsertDates(ctx context.Context, dates []*models.DimData) error
	InsertAccidentTypes(ctx context.Context, types []*models.DimTipoAcidente) error
	InsertVehicles(ctx context.Context, vehicles []*models.DimVeiculo) error
	InsertVictims(ctx context.Context, victims []*models.DimTipoVitima) error

	// AssembleFacts resolves surrogate keys for every staging row with one
	// set-based INSERT ... SELECT and returns the number of fact rows written.
	AssembleFacts(ctx context.Context) (int64, error)

	// DanglingFactReferences counts fact rows per foreign key column whose
	// non-NULL reference does not resolve. Only non-zero counts are returned.
	DanglingFactReferences(ctx context.Context) (map[string]int, error)

	ListRoads(ctx context.Context) ([]*models.DimRodovia, error)
	ListDates(ctx context.Context) ([]*models.DimData, error)
	ListAccidentTypes(ctx context.Context) ([]*models.DimTipoAcidente, error)
	ListVehicles(ctx context.Context) ([]*models.DimVeiculo, error)
	ListVictims(ctx context.Context) ([]*models.DimTipoVitima, error)
	ListFacts(ctx context.Context) ([]*models.FatoAcidente, error)
}

// warehouseRepository implements WarehouseRepository
type warehouseRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWarehouseRepository creates a new warehouse repository
func NewWarehouseRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WarehouseRepository {
	return &warehouseRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Reset clears the fact table and all dimensions. Rows only; the schema stays.
func (r *warehouseRepository) Reset(ctx context.Context) error {
	err := r.db.WithTx(ctx, "warehouse_reset", func(tx *sqlx.Tx) error {
		for _, table := range warehouseTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset warehouse: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_RESET] Warehouse tables cleared", logging.Fields{
		"tables": warehouseTables,
	})
	return nil
}

// InsertRoads inserts road segment rows
func (r *warehouseRepository) InsertRoads(ctx context.Context, roads []*models.DimRodovia) error {
	return insertDimension(ctx, r, "dim_rodovia",
		`INSERT INTO dim_rodovia (trecho, sentido) VALUES (:trecho, :sentido)`,
		roads)
}

// InsertDates inserts date rows
func (r *warehouseRepository) InsertDates(ctx context.Context, dates []*models.DimData) error {
	return insertDimension(ctx, r, "dim_data",
		`INSERT INTO dim_data (data, data_texto, ano, mes, dia, dia_da_semana)
		 VALUES (:data, :data_texto, :ano, :mes, :dia, :dia_da_semana)`,
		dates)
}

// InsertAccidentTypes inserts accident type rows
func (r *warehouseRepository) InsertAccidentTypes(ctx context.Context, types []*models.DimTipoAcidente) error {
	return insertDimension(ctx, r, "dim_tipo_acidente",
		`INSERT INTO dim_tipo_acidente (descricao) VALUES (:descricao)`,
		types)
}

// InsertVehicles inserts unpivoted vehicle rows
func (r *warehouseRepository) InsertVehicles(ctx context.Context, vehicles []*models.DimVeiculo) error {
	return insertDimension(ctx, r, "dim_veiculo",
		`INSERT INTO dim_veiculo (n_da_ocorrencia, tipo_veiculo) VALUES (:n_da_ocorrencia, :tipo_veiculo)`,
		vehicles)
}

// InsertVictims inserts unpivoted victim rows
func (r *warehouseRepository) InsertVictims(ctx context.Context, victims []*models.DimTipoVitima) error {
	return insertDimension(ctx, r, "dim_tipo_vitima",
		`INSERT INTO dim_tipo_vitima (n_da_ocorrencia, tipo_vitima, quantidade)
		 VALUES (:n_da_ocorrencia, :tipo_vitima, :quantidade)`,
		victims)
}

// insertDimension writes rows with multi-row named inserts inside one transaction
func insertDimension[T any](ctx context.Context, r *warehouseRepository, table, query string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	timer := time.Now()
	err := r.db.WithTx(ctx, "insert_"+table, func(tx *sqlx.Tx) error {
		for start := 0; start < len(rows); start += dimensionBatchSize {
			end := min(start+dimensionBatchSize, len(rows))
			if _, err := tx.NamedExecContext(ctx, query, rows[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s rows: %w", table, err)
	}

	r.logger.Debug(ctx, "[REPO_DIM_INSERT] Dimension rows inserted", logging.Fields{
		"table":       table,
		"rows":        len(rows),
		"duration_ms": time.Since(timer).Milliseconds(),
	})
	return nil
}

// assembleFactsQuery joins staging to every dimension on natural keys.
// Road, date and accident type are inner joins, so unmatched staging rows
// produce no fact. Vehicle and victim are left joins on the occurrence number:
// a row with M vehicle and N victim matches yields M*N facts, and a row with
// none keeps one fact with NULL references.
const assembleFactsQuery = `
	INSERT INTO fato_acidentes (
		id_rodovia, id_data, id_tipo_acidente, id_veiculo, id_tipo_vitima,
		id_staging, n_da_ocorrencia, km, horario, quantidade_vitimas
	)
	SELECT
		r.id_rodovia,
		d.id_data,
		t.id_tipo_acidente,
		v.id_veiculo,
		vt.id_tipo_vitima,
		s.id,
		s.n_da_ocorrencia,
		CAST(REPLACE(s.km, ',', '.') AS %s),
		s.horario,
		vt.quantidade
	FROM stg_acidentes s
	JOIN dim_rodovia r ON r.trecho = s.trecho AND r.sentido = s.sentido
	JOIN dim_data d ON d.data_texto = s.data
	JOIN dim_tipo_acidente t ON t.descricao = s.tipo_de_acidente
	LEFT JOIN dim_veiculo v ON v.n_da_ocorrencia = s.n_da_ocorrencia
	LEFT JOIN dim_tipo_vitima vt ON vt.n_da_ocorrencia = s.n_da_ocorrencia
	ORDER BY s.seq, v.id_veiculo, vt.id_tipo_vitima
`

// AssembleFacts populates fato_acidentes from staging and the dimensions
func (r *warehouseRepository) AssembleFacts(ctx context.Context) (int64, error) {
	numeric := "NUMERIC"
	if r.db.Dialect() == database.DialectSQLite {
		numeric = "REAL"
	}
	query := fmt.Sprintf(assembleFactsQuery, numeric)

	var inserted int64
	err := r.db.WithTx(ctx, "assemble_facts", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query)
		if err != nil {
			return err
		}
		inserted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to assemble facts: %w", err)
	}

	return inserted, nil
}

// DanglingFactReferences verifies every fact foreign key resolves
func (r *warehouseRepository) DanglingFactReferences(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM fato_acidentes f
			 LEFT JOIN dim_rodovia x ON x.id_rodovia = f.id_rodovia
			 WHERE x.id_rodovia IS NULL) AS id_rodovia,
			(SELECT COUNT(*) FROM fato_acidentes f
			 LEFT JOIN dim_data x ON x.id_data = f.id_data
			 WHERE x.id_data IS NULL) AS id_data,
			(SELECT COUNT(*) FROM fato_acidentes f
			 LEFT JOIN dim_tipo_acidente x ON x.id_tipo_acidente = f.id_tipo_acidente
			 WHERE x.id_tipo_acidente IS NULL) AS id_tipo_acidente,
			(SELECT COUNT(*) FROM fato_acidentes f
			 LEFT JOIN dim_veiculo x ON x.id_veiculo = f.id_veiculo
			 WHERE f.id_veiculo IS NOT NULL AND x.id_veiculo IS NULL) AS id_veiculo,
			(SELECT COUNT(*) FROM fato_acidentes f
			 LEFT JOIN dim_tipo_vitima x ON x.id_tipo_vitima = f.id_tipo_vitima
			 WHERE f.id_tipo_vitima IS NOT NULL AND x.id_tipo_vitima IS NULL) AS id_tipo_vitima
	`

	var counts struct {
		Rodovia      int `db:"id_rodovia"`
		Data         int `db:"id_data"`
		TipoAcidente int `db:"id_tipo_acidente"`
		Veiculo      int `db:"id_veiculo"`
		TipoVitima   int `db:"id_tipo_vitima"`
	}
	if err := r.db.GetContext(ctx, "verify_facts", &counts, query); err != nil {
		return nil, fmt.Errorf("failed to verify fact references: %w", err)
	}

	dangling := make(map[string]int)
	for col, n := range map[string]int{
		"id_rodovia":       counts.Rodovia,
		"id_data":          counts.Data,
		"id_tipo_acidente": counts.TipoAcidente,
		"id_veiculo":       counts.Veiculo,
		"id_tipo_vitima":   counts.TipoVitima,
	} {
		if n > 0 {
			dangling[col] = n
		}
	}
	return dangling, nil
}

// ListRoads returns road rows by surrogate key
func (r *warehouseRepository) ListRoads(ctx context.Context) ([]*models.DimRodovia, error) {
	var rows []*models.DimRodovia
	err := r.db.SelectContext(ctx, "list_roads", &rows,
		`SELECT id_rodovia, trecho, sentido FROM dim_rodovia ORDER BY id_rodovia`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roads: %w", err)
	}
	return rows, nil
}

// ListDates returns date rows by surrogate key
func (r *warehouseRepository) ListDates(ctx context.Context) ([]*models.DimData, error) {
	var rows []*models.DimData
	err := r.db.SelectContext(ctx, "list_dates", &rows,
		`SELECT id_data, data, data_texto, ano, mes, dia, dia_da_semana FROM dim_data ORDER BY id_data`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dates: %w", err)
	}
	return rows, nil
}

// ListAccidentTypes returns accident type rows by surrogate key
func (r *warehouseRepository) ListAccidentTypes(ctx context.Context) ([]*models.DimTipoAcidente, error) {
	var rows []*models.DimTipoAcidente
	err := r.db.SelectContext(ctx, "list_accident_types", &rows,
		`SELECT id_tipo_acidente, descricao FROM dim_tipo_acidente ORDER BY id_tipo_acidente`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accident types: %w", err)
	}
	return rows, nil
}

// ListVehicles returns vehicle rows by surrogate key
func (r *warehouseRepository) ListVehicles(ctx context.Context) ([]*models.DimVeiculo, error) {
	var rows []*models.DimVeiculo
	err := r.db.SelectContext(ctx, "list_vehicles", &rows,
		`SELECT id_veiculo, n_da_ocorrencia, tipo_veiculo FROM dim_veiculo ORDER BY id_veiculo`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return rows, nil
}

// ListVictims returns victim rows by surrogate key
func (r *warehouseRepository) ListVictims(ctx context.Context) ([]*models.DimTipoVitima, error) {
	var rows []*models.DimTipoVitima
	err := r.db.SelectContext(ctx, "list_victims", &rows,
		`SELECT id_tipo_vitima, n_da_ocorrencia, tipo_vitima, quantidade FROM dim_tipo_vitima ORDER BY id_tipo_vitima`)
	if err != nil {
		return nil, fmt.Errorf("failed to list victims: %w", err)
	}
	return rows, nil
}

// ListFacts returns fact rows by surrogate key
func (r *warehouseRepository) ListFacts(ctx context.Context) ([]*models.FatoAcidente, error) {
	var rows []*models.FatoAcidente
	err := r.db.SelectContext(ctx, "list_facts", &rows, `
		SELECT id_fato, id_rodovia, id_data, id_tipo_acidente, id_veiculo, id_tipo_vitima,
		       id_staging, n_da_ocorrencia, km, horario, quantidade_vitimas
		FROM fato_acidentes
		ORDER BY id_fato`)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	return rows, nil
}
