package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoDataFiles is returned when the source directory holds no CSV files
	ErrNoDataFiles = errors.New("no CSV files found")

	// ErrUndecodable is returned for files that are neither UTF-8 nor Latin-1 text
	ErrUndecodable = errors.New("file is neither valid UTF-8 nor Latin-1 text")
)

// Pipeline stage names, used in StageError and as metric labels.
const (
	StageStaging         = "staging"
	StageReset           = "reset"
	StageDimensions      = "dimensions"
	StageDimRodovia      = "dim_rodovia"
	StageDimData         = "dim_data"
	StageDimTipoAcidente = "dim_tipo_acidente"
	StageDimVeiculo      = "dim_veiculo"
	StageDimTipoVitima   = "dim_tipo_vitima"
	StageFacts           = "fato_acidentes"
	StageVerify          = "verify"
)

// ValidationError represents a staging value that cannot be interpreted
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// AcquisitionError is raised while locating, decoding or parsing source files.
// It always aborts the run before the database is touched.
type AcquisitionError struct {
	Path string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed for %s: %v", e.Path, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// IsTransient returns false; a rerun reads the same files
func (e *AcquisitionError) IsTransient() bool {
	return false
}

// StageError names the pipeline stage that aborted the run
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IntegrityError reports fact rows whose foreign keys do not resolve,
// keyed by the referencing column.
type IntegrityError struct {
	Dangling map[string]int
}

func (e *IntegrityError) Error() string {
	cols := make([]string, 0, len(e.Dangling))
	for col := range e.Dangling {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, fmt.Sprintf("%s=%d", col, e.Dangling[col]))
	}
	return "dangling fact references: " + strings.Join(parts, ", ")
}

// IsTransient returns false as integrity violations are permanent
func (e *IntegrityError) IsTransient() bool {
	return false
}
