package repository_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accidents-dw/internal/models"
	"accidents-dw/internal/repository"
	"accidents-dw/internal/testutil"
)

type repos struct {
	env       *testutil.Env
	staging   repository.StagingRepository
	warehouse repository.WarehouseRepository
	reports   repository.ReportRepository
}

func newRepos(t *testing.T) *repos {
	env := testutil.NewSQLite(t)
	return &repos{
		env:       env,
		staging:   repository.NewStagingRepository(env.DB, env.Logger, env.Metrics),
		warehouse: repository.NewWarehouseRepository(env.DB, env.Logger, env.Metrics),
		reports:   repository.NewReportRepository(env.DB, env.Logger, env.Metrics),
	}
}

func stagingRow(id, occurrence, date, trecho, sentido, tipo string) *models.StagingRecord {
	return &models.StagingRecord{
		ID:             id,
		NomeArquivo:    "fixture",
		Data:           models.Text(date),
		NDaOcorrencia:  models.Text(occurrence),
		Trecho:         models.Text(trecho),
		Sentido:        models.Text(sentido),
		TipoDeAcidente: models.Text(tipo),
		Km:             models.Text("12,5"),
		Horario:        models.Text("08:30"),
	}
}

// seedDimensions inserts one road, date and accident type matching stagingRow defaults
func seedDimensions(t *testing.T, r *repos) {
	ctx := context.Background()
	date, err := models.ParseAccidentDate("01/02/2023")
	require.NoError(t, err)

	require.NoError(t, r.warehouse.InsertRoads(ctx, []*models.DimRodovia{{Trecho: models.Text("BR-116"), Sentido: models.Text("Norte")}}))
	require.NoError(t, r.warehouse.InsertDates(ctx, []*models.DimData{date}))
	require.NoError(t, r.warehouse.InsertAccidentTypes(ctx, []*models.DimTipoAcidente{{Descricao: "Colisão"}}))
}

func TestStagingReplaceResetsIdentity(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	first := []*models.StagingRecord{
		stagingRow("a", "1", "01/02/2023", "BR-116", "Norte", "Colisão"),
		stagingRow("b", "2", "01/02/2023", "BR-116", "Norte", "Colisão"),
		stagingRow("c", "3", "01/02/2023", "BR-116", "Norte", "Colisão"),
	}
	require.NoError(t, r.staging.Replace(ctx, first, 2))

	second := []*models.StagingRecord{
		stagingRow("d", "4", "02/02/2023", "BR-040", "Sul", "Capotamento"),
	}
	second[0].Mortos = models.Text("1")
	require.NoError(t, r.staging.Replace(ctx, second, 2))

	rows, err := r.staging.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Seq, "identity restarts after replace")
	assert.Equal(t, "d", rows[0].ID)
	assert.Equal(t, "fixture", rows[0].NomeArquivo)
	assert.Equal(t, models.Text("1"), rows[0].Mortos)
	assert.False(t, rows[0].Automovel.Valid, "NULL survives the round trip")
}

func TestStagingReplaceAcrossBatches(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	var records []*models.StagingRecord
	for i := 0; i < 7; i++ {
		records = append(records, stagingRow(fmt.Sprintf("id-%d", i), fmt.Sprint(i), "01/02/2023", "BR-116", "Norte", "Colisão"))
	}
	require.NoError(t, r.staging.Replace(ctx, records, 3))

	n, err := r.staging.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	rows, err := r.staging.ListAll(ctx)
	require.NoError(t, err)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("id-%d", i), row.ID, "load order preserved")
	}
}

func TestStagingReplaceEmptyClears(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	require.NoError(t, r.staging.Replace(ctx, []*models.StagingRecord{stagingRow("a", "1", "01/02/2023", "x", "y", "z")}, 10))
	require.NoError(t, r.staging.Replace(ctx, nil, 10))

	n, err := r.staging.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStagingReplaceRollsBackOnDuplicateID(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	require.NoError(t, r.staging.Replace(ctx, []*models.StagingRecord{stagingRow("keep", "1", "01/02/2023", "x", "y", "z")}, 10))

	dup := []*models.StagingRecord{
		stagingRow("same", "1", "01/02/2023", "x", "y", "z"),
		stagingRow("same", "2", "01/02/2023", "x", "y", "z"),
	}
	require.Error(t, r.staging.Replace(ctx, dup, 10))

	rows, err := r.staging.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1, "failed replace leaves prior contents")
	assert.Equal(t, "keep", rows[0].ID)
}

func TestWarehouseResetIsIdempotent(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	seedDimensions(t, r)
	require.NoError(t, r.staging.Replace(ctx, []*models.StagingRecord{stagingRow("a", "1", "01/02/2023", "BR-116", "Norte", "Colisão")}, 10))
	_, err := r.warehouse.AssembleFacts(ctx)
	require.NoError(t, err)

	countsAfter := func() map[string]int {
		counts, err := r.reports.TableCounts(ctx)
		require.NoError(t, err)
		m := make(map[string]int)
		for _, c := range counts {
			m[c.Table] = c.Rows
		}
		return m
	}

	require.NoError(t, r.warehouse.Reset(ctx))
	once := countsAfter()
	require.NoError(t, r.warehouse.Reset(ctx))
	twice := countsAfter()

	assert.Equal(t, once, twice)
	for _, table := range []string{"fato_acidentes", "dim_rodovia", "dim_data", "dim_tipo_acidente", "dim_veiculo", "dim_tipo_vitima"} {
		assert.Zero(t, once[table], table)
	}
	assert.Equal(t, 1, once["stg_acidentes"], "reset never touches staging")
}

func TestAssembleFactsFanOut(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	seedDimensions(t, r)

	require.NoError(t, r.staging.Replace(ctx, []*models.StagingRecord{
		stagingRow("fan", "OC-9", "01/02/2023", "BR-116", "Norte", "Colisão"),
	}, 10))
	require.NoError(t, r.warehouse.InsertVehicles(ctx, []*models.DimVeiculo{
		{NDaOcorrencia: "OC-9", TipoVeiculo: "automovel"},
		{NDaOcorrencia: "OC-9", TipoVeiculo: "caminhao"},
	}))
	require.NoError(t, r.warehouse.InsertVictims(ctx, []*models.DimTipoVitima{
		{NDaOcorrencia: "OC-9", TipoVitima: "ilesos", Quantidade: 2},
		{NDaOcorrencia: "OC-9", TipoVitima: "levemente_feridos", Quantidade: 1},
		{NDaOcorrencia: "OC-9", TipoVitima: "mortos", Quantidade: 1},
	}))

	n, err := r.warehouse.AssembleFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	facts, err := r.warehouse.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 6)

	pairs := make(map[[2]int64]bool)
	for _, f := range facts {
		assert.Equal(t, "fan", f.IDStaging)
		assert.InDelta(t, 12.5, f.Km.Float64, 1e-9)
		assert.Equal(t, "08:30", f.Horario.String)
		require.True(t, f.IDVeiculo.Valid)
		require.True(t, f.IDTipoVitima.Valid)
		assert.True(t, f.QuantidadeVitimas.Valid)
		pairs[[2]int64{f.IDVeiculo.Int64, f.IDTipoVitima.Int64}] = true
	}
	assert.Len(t, pairs, 6, "every vehicle/victim pairing appears once")
}

func TestAssembleFactsJoinSemantics(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	seedDimensions(t, r)

	require.NoError(t, r.staging.Replace(ctx, []*models.StagingRecord{
		// matches road/date/type, no vehicle or victim rows
		stagingRow("bare", "OC-1", "01/02/2023", "BR-116", "Norte", "Colisão"),
		// direction has no road dimension row
		stagingRow("noroad", "OC-2", "01/02/2023", "BR-116", "Sul", "Colisão"),
		// date has no date dimension row
		stagingRow("nodate", "OC-3", "03/02/2023", "BR-116", "Norte", "Colisão"),
		// accident type has no dimension row
		stagingRow("notype", "OC-4", "01/02/2023", "BR-116", "Norte", "Atropelamento"),
	}, 10))
	require.NoError(t, r.warehouse.InsertVehicles(ctx, []*models.DimVeiculo{
		{NDaOcorrencia: "OC-2", TipoVeiculo: "moto"},
	}))

	n, err := r.warehouse.AssembleFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	facts, err := r.warehouse.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "bare", facts[0].IDStaging)
	assert.False(t, facts[0].IDVeiculo.Valid)
	assert.False(t, facts[0].IDTipoVitima.Valid)
	assert.False(t, facts[0].QuantidadeVitimas.Valid)
}

func TestDanglingFactReferences(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	seedDimensions(t, r)

	require.NoError(t, r.staging.Replace(ctx, []*models.StagingRecord{
		stagingRow("a", "OC-1", "01/02/2023", "BR-116", "Norte", "Colisão"),
	}, 10))
	_, err := r.warehouse.AssembleFacts(ctx)
	require.NoError(t, err)

	dangling, err := r.warehouse.DanglingFactReferences(ctx)
	require.NoError(t, err)
	assert.Empty(t, dangling)

	// simulate a broken load by removing a referenced dimension row
	_, err = r.env.DB.ExecContext(ctx, "test", "PRAGMA foreign_keys = OFF")
	require.NoError(t, err)
	_, err = r.env.DB.ExecContext(ctx, "test", "DELETE FROM dim_data")
	require.NoError(t, err)
	_, err = r.env.DB.ExecContext(ctx, "test", "UPDATE fato_acidentes SET id_veiculo = 999")
	require.NoError(t, err)

	dangling, err = r.warehouse.DanglingFactReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"id_data": 1, "id_veiculo": 1}, dangling)
}

func TestDimensionUniqueness(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	seedDimensions(t, r)

	err := r.warehouse.InsertAccidentTypes(ctx, []*models.DimTipoAcidente{{Descricao: "Colisão"}})
	assert.Error(t, err, "duplicate description without a reset is a constraint violation")

	types, err := r.warehouse.ListAccidentTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 1)

	dates, err := r.warehouse.ListDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, "01/02/2023", dates[0].DataTexto)
	assert.Equal(t, 2023, dates[0].Data.Year())
	assert.Equal(t, "quarta-feira", dates[0].DiaDaSemana)
}
