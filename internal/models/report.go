package models

// YearCount is the number of distinct accidents recorded in a year
type YearCount struct {
	Ano       int `json:"ano" db:"ano"`
	Acidentes int `json:"acidentes" db:"acidentes"`
}

// RoadCount is the number of distinct accidents on a road segment
type RoadCount struct {
	Trecho    NullText `json:"trecho" db:"trecho"`
	Sentido   NullText `json:"sentido" db:"sentido"`
	Acidentes int      `json:"acidentes" db:"acidentes"`
}

// VictimCount totals victims of one severity category
type VictimCount struct {
	TipoVitima string `json:"tipo_vitima" db:"tipo_vitima"`
	Vitimas    int    `json:"vitimas" db:"vitimas"`
}

// TableCount is the row count of one warehouse table
type TableCount struct {
	Table string `json:"table" db:"table_name"`
	Rows  int    `json:"rows" db:"row_count"`
}
