package models

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// AccidentDateLayout is the only accepted source date format (DD/MM/YYYY)
const AccidentDateLayout = "02/01/2006"

// DimRodovia is a distinct (trecho, sentido) road segment
type DimRodovia struct {
	ID      int64    `json:"id_rodovia" db:"id_rodovia"`
	Trecho  NullText `json:"trecho" db:"trecho"`
	Sentido NullText `json:"sentido" db:"sentido"`
}

// DimData is one distinct accident date, decomposed for grouping
type DimData struct {
	ID          int64     `json:"id_data" db:"id_data"`
	Data        time.Time `json:"data" db:"data"`
	DataTexto   string    `json:"data_texto" db:"data_texto"`
	Ano         int       `json:"ano" db:"ano"`
	Mes         int       `json:"mes" db:"mes"`
	Dia         int       `json:"dia" db:"dia"`
	DiaDaSemana string    `json:"dia_da_semana" db:"dia_da_semana"`
}

// DimTipoAcidente is a distinct accident-type description
type DimTipoAcidente struct {
	ID        int64  `json:"id_tipo_acidente" db:"id_tipo_acidente"`
	Descricao string `json:"descricao" db:"descricao"`
}

// DimVeiculo records that a vehicle category was involved in an occurrence.
// Rows are not unique per category.
type DimVeiculo struct {
	ID            int64  `json:"id_veiculo" db:"id_veiculo"`
	NDaOcorrencia string `json:"n_da_ocorrencia" db:"n_da_ocorrencia"`
	TipoVeiculo   string `json:"tipo_veiculo" db:"tipo_veiculo"`
}

// DimTipoVitima records a victim severity present in an occurrence and how many
type DimTipoVitima struct {
	ID            int64  `json:"id_tipo_vitima" db:"id_tipo_vitima"`
	NDaOcorrencia string `json:"n_da_ocorrencia" db:"n_da_ocorrencia"`
	TipoVitima    string `json:"tipo_vitima" db:"tipo_vitima"`
	Quantidade    int    `json:"quantidade" db:"quantidade"`
}

// FatoAcidente is one fact row. A staging row fans out into one fact per
// (vehicle row, victim row) pair that shares its occurrence number.
type FatoAcidente struct {
	ID                int64           `db:"id_fato"`
	IDRodovia         int64           `db:"id_rodovia"`
	IDData            int64           `db:"id_data"`
	IDTipoAcidente    int64           `db:"id_tipo_acidente"`
	IDVeiculo         sql.NullInt64   `db:"id_veiculo"`
	IDTipoVitima      sql.NullInt64   `db:"id_tipo_vitima"`
	IDStaging         string          `db:"id_staging"`
	NDaOcorrencia     NullText        `db:"n_da_ocorrencia"`
	Km                sql.NullFloat64 `db:"km"`
	Horario           NullText        `db:"horario"`
	QuantidadeVitimas sql.NullInt64   `db:"quantidade_vitimas"`
}

var weekdays = [...]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// WeekdayName returns the Portuguese name of the weekday
func WeekdayName(d time.Weekday) string {
	return weekdays[d]
}

// ParseAccidentDate parses a DD/MM/YYYY staging date into a date dimension row.
// The layout is strict (zero-padded day and month) so every calendar date has
// exactly one textual form.
func ParseAccidentDate(raw string) (*DimData, error) {
	text := strings.TrimSpace(raw)
	date, err := time.Parse(AccidentDateLayout, text)
	if err != nil {
		return nil, &ValidationError{
			Field:   "data",
			Value:   raw,
			Message: "invalid date format, expected DD/MM/YYYY",
		}
	}

	return &DimData{
		Data:        date,
		DataTexto:   text,
		Ano:         date.Year(),
		Mes:         int(date.Month()),
		Dia:         date.Day(),
		DiaDaSemana: WeekdayName(date.Weekday()),
	}, nil
}

// parseCount accepts integers and decimals ("2", "2.5", "2,0") within the
// int32 range. Fractional values are returned untruncated.
func parseCount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return f, true
}

// ParseVehicleCount coerces a raw vehicle counter. NULL, non-numeric and
// out-of-range text count as zero; fractions are truncated toward zero.
func ParseVehicleCount(raw NullText) int {
	if !raw.Valid {
		return 0
	}
	f, ok := parseCount(raw.String)
	if !ok {
		return 0
	}
	return int(math.Trunc(f))
}

// ParseVictimCount parses a raw victim counter. NULL counts as zero; any other
// non-numeric, fractional or out-of-range text is a ValidationError.
func ParseVictimCount(category string, raw NullText) (int, error) {
	if !raw.Valid {
		return 0, nil
	}
	f, ok := parseCount(raw.String)
	if !ok || f != math.Trunc(f) {
		return 0, &ValidationError{
			Field:   category,
			Value:   raw.String,
			Message: fmt.Sprintf("non-numeric victim count for %s", category),
		}
	}
	return int(f), nil
}
