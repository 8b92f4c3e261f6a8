package services

import (
	"fmt"

	"accidents-dw/internal/models"
)

// The derivations below are pure functions over the full staging set. Each
// preserves first-seen order so surrogate keys follow staging load order.

// DeriveRoads returns the distinct (trecho, sentido) pairs. A NULL member is
// kept as its own value; such rows never join a staging row.
func DeriveRoads(records []*models.StagingRecord) []*models.DimRodovia {
	type key struct{ trecho, sentido models.NullText }

	seen := make(map[key]struct{})
	var roads []*models.DimRodovia
	for _, rec := range records {
		k := key{rec.Trecho, rec.Sentido}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		roads = append(roads, &models.DimRodovia{Trecho: rec.Trecho, Sentido: rec.Sentido})
	}
	return roads
}

// DeriveDates parses every distinct non-NULL date. One unparseable date fails
// the whole derivation.
func DeriveDates(records []*models.StagingRecord) ([]*models.DimData, error) {
	seen := make(map[string]struct{})
	var dates []*models.DimData
	for _, rec := range records {
		if !rec.Data.Valid {
			continue
		}
		if _, ok := seen[rec.Data.String]; ok {
			continue
		}
		seen[rec.Data.String] = struct{}{}

		d, err := models.ParseAccidentDate(rec.Data.String)
		if err != nil {
			return nil, fmt.Errorf("staging row %s from %s: %w", rec.ID, rec.NomeArquivo, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// DeriveAccidentTypes returns the distinct non-NULL accident descriptions
func DeriveAccidentTypes(records []*models.StagingRecord) []*models.DimTipoAcidente {
	seen := make(map[string]struct{})
	var types []*models.DimTipoAcidente
	for _, rec := range records {
		if !rec.TipoDeAcidente.Valid {
			continue
		}
		if _, ok := seen[rec.TipoDeAcidente.String]; ok {
			continue
		}
		seen[rec.TipoDeAcidente.String] = struct{}{}
		types = append(types, &models.DimTipoAcidente{Descricao: rec.TipoDeAcidente.String})
	}
	return types
}

// UnpivotVehicles emits one row per (occurrence, vehicle category) with a
// positive count. Malformed counts coerce to zero. Rows are not deduplicated
// across staging rows sharing an occurrence number.
func UnpivotVehicles(records []*models.StagingRecord) []*models.DimVeiculo {
	var vehicles []*models.DimVeiculo
	for _, rec := range records {
		if !rec.NDaOcorrencia.Valid {
			continue
		}
		for _, c := range rec.Vehicles() {
			if models.ParseVehicleCount(c.Raw) > 0 {
				vehicles = append(vehicles, &models.DimVeiculo{
					NDaOcorrencia: rec.NDaOcorrencia.String,
					TipoVeiculo:   c.Category,
				})
			}
		}
	}
	return vehicles
}

// UnpivotVictims emits one row per (occurrence, severity) with a positive
// count, keeping the count. Every row's counters are validated, including
// rows without an occurrence number.
func UnpivotVictims(records []*models.StagingRecord) ([]*models.DimTipoVitima, error) {
	var victims []*models.DimTipoVitima
	for _, rec := range records {
		for _, c := range rec.Victims() {
			n, err := models.ParseVictimCount(c.Category, c.Raw)
			if err != nil {
				return nil, fmt.Errorf("staging row %s from %s: %w", rec.ID, rec.NomeArquivo, err)
			}
			if n <= 0 || !rec.NDaOcorrencia.Valid {
				continue
			}
			victims = append(victims, &models.DimTipoVitima{
				NDaOcorrencia: rec.NDaOcorrencia.String,
				TipoVitima:    c.Category,
				Quantidade:    n,
			})
		}
	}
	return victims, nil
}
