package models

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// NullText is a raw CSV cell. Values are trimmed on decode and an empty cell
// is NULL. It scans and binds like sql.NullString.
type NullText struct {
	sql.NullString
}

// Text returns a valid NullText holding s
func Text(s string) NullText {
	return NullText{sql.NullString{String: s, Valid: true}}
}

// UnmarshalText implements encoding.TextUnmarshaler for the CSV decoder
func (n *NullText) UnmarshalText(data []byte) error {
	s := strings.TrimSpace(string(data))
	n.String = s
	n.Valid = s != ""
	return nil
}

// MarshalJSON renders NULL as null
func (n NullText) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

// Vehicle category columns, in the order they are unpivoted.
var VehicleCategories = []string{
	"automovel",
	"bicicleta",
	"caminhao",
	"moto",
	"onibus",
	"outros",
	"tracao_animal",
	"transporte_de_cargas_especiais",
	"trator_maquinas",
	"utilitarios",
}

// Victim severity columns, in the order they are unpivoted.
var VictimCategories = []string{
	"ilesos",
	"levemente_feridos",
	"moderadamente_feridos",
	"gravemente_feridos",
	"mortos",
}

// StagingColumns lists the insertable stg_acidentes columns in load order.
// The seq identity column is assigned by the database.
var StagingColumns = []string{
	"id",
	"nome_arquivo",
	"concessionaria",
	"data",
	"horario",
	"n_da_ocorrencia",
	"tipo_de_ocorrencia",
	"km",
	"trecho",
	"sentido",
	"tipo_de_acidente",
	"automovel",
	"bicicleta",
	"caminhao",
	"moto",
	"onibus",
	"outros",
	"tracao_animal",
	"transporte_de_cargas_especiais",
	"trator_maquinas",
	"utilitarios",
	"ilesos",
	"levemente_feridos",
	"moderadamente_feridos",
	"gravemente_feridos",
	"mortos",
}

// StagingRecord is one raw input line. Every data field is untyped text;
// numeric and date interpretation happens when dimensions are built.
type StagingRecord struct {
	Seq         int64  `csv:"-" db:"seq"`
	ID          string `csv:"-" db:"id"`
	NomeArquivo string `csv:"-" db:"nome_arquivo"`

	Concessionaria   NullText `csv:"concessionaria" db:"concessionaria"`
	Data             NullText `csv:"data" db:"data"`
	Horario          NullText `csv:"horario" db:"horario"`
	NDaOcorrencia    NullText `csv:"n_da_ocorrencia" db:"n_da_ocorrencia"`
	TipoDeOcorrencia NullText `csv:"tipo_de_ocorrencia" db:"tipo_de_ocorrencia"`
	Km               NullText `csv:"km" db:"km"`
	Trecho           NullText `csv:"trecho" db:"trecho"`
	Sentido          NullText `csv:"sentido" db:"sentido"`
	TipoDeAcidente   NullText `csv:"tipo_de_acidente" db:"tipo_de_acidente"`

	Automovel                   NullText `csv:"automovel" db:"automovel"`
	Bicicleta                   NullText `csv:"bicicleta" db:"bicicleta"`
	Caminhao                    NullText `csv:"caminhao" db:"caminhao"`
	Moto                        NullText `csv:"moto" db:"moto"`
	Onibus                      NullText `csv:"onibus" db:"onibus"`
	Outros                      NullText `csv:"outros" db:"outros"`
	TracaoAnimal                NullText `csv:"tracao_animal" db:"tracao_animal"`
	TransporteDeCargasEspeciais NullText `csv:"transporte_de_cargas_especiais" db:"transporte_de_cargas_especiais"`
	TratorMaquinas              NullText `csv:"trator_maquinas" db:"trator_maquinas"`
	Utilitarios                 NullText `csv:"utilitarios" db:"utilitarios"`

	Ilesos               NullText `csv:"ilesos" db:"ilesos"`
	LevementeFeridos     NullText `csv:"levemente_feridos" db:"levemente_feridos"`
	ModeradamenteFeridos NullText `csv:"moderadamente_feridos" db:"moderadamente_feridos"`
	GravementeFeridos    NullText `csv:"gravemente_feridos" db:"gravemente_feridos"`
	Mortos               NullText `csv:"mortos" db:"mortos"`
}

// CategoryCount pairs an unpivot category with its raw counter text
type CategoryCount struct {
	Category string
	Raw      NullText
}

// Vehicles returns the raw vehicle counters in VehicleCategories order
func (r *StagingRecord) Vehicles() []CategoryCount {
	return []CategoryCount{
		{"automovel", r.Automovel},
		{"bicicleta", r.Bicicleta},
		{"caminhao", r.Caminhao},
		{"moto", r.Moto},
		{"onibus", r.Onibus},
		{"outros", r.Outros},
		{"tracao_animal", r.TracaoAnimal},
		{"transporte_de_cargas_especiais", r.TransporteDeCargasEspeciais},
		{"trator_maquinas", r.TratorMaquinas},
		{"utilitarios", r.Utilitarios},
	}
}

// Victims returns the raw victim counters in VictimCategories order
func (r *StagingRecord) Victims() []CategoryCount {
	return []CategoryCount{
		{"ilesos", r.Ilesos},
		{"levemente_feridos", r.LevementeFeridos},
		{"moderadamente_feridos", r.ModeradamenteFeridos},
		{"gravemente_feridos", r.GravementeFeridos},
		{"mortos", r.Mortos},
	}
}

// Values returns the record's column values in StagingColumns order, for
// positional bulk loaders such as COPY.
func (r *StagingRecord) Values() []interface{} {
	values := []interface{}{
		r.ID,
		r.NomeArquivo,
		r.Concessionaria,
		r.Data,
		r.Horario,
		r.NDaOcorrencia,
		r.TipoDeOcorrencia,
		r.Km,
		r.Trecho,
		r.Sentido,
		r.TipoDeAcidente,
	}
	for _, v := range r.Vehicles() {
		values = append(values, v.Raw)
	}
	for _, v := range r.Victims() {
		values = append(values, v.Raw)
	}
	return values
}
