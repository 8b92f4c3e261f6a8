// Package source reads the semicolon-delimited accident CSV files into
// staging records. It performs no database I/O so a bad file can be
// rejected before anything is written.
package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jszwec/csvutil"
	"golang.org/x/text/encoding/charmap"

	"accidents-dw/internal/models"
)

// Encoding is the character encoding a file was decoded with
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "latin-1"
)

// Delimiter separates fields in every source file
const Delimiter = ';'

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File is the decoded content of one source CSV
type File struct {
	Path     string
	Name     string // base name without extension, stored as nome_arquivo
	Encoding Encoding
	Records  []*models.StagingRecord
	// UnknownColumns are header names that map to no staging column
	UnknownColumns []string
}

// Discover returns the CSV files in dir sorted by name.
// The extension match is case-insensitive.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &models.AcquisitionError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &models.AcquisitionError{Path: dir, Err: errors.New("not a directory")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &models.AcquisitionError{Path: dir, Err: err}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	if len(files) == 0 {
		return nil, &models.AcquisitionError{Path: dir, Err: models.ErrNoDataFiles}
	}

	sort.Strings(files)
	return files, nil
}

// ReadFile reads, decodes and parses one source file
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.AcquisitionError{Path: path, Err: err}
	}

	text, enc, err := Decode(raw)
	if err != nil {
		return nil, &models.AcquisitionError{Path: path, Err: err}
	}

	base := filepath.Base(path)
	file := &File{
		Path:     path,
		Name:     strings.TrimSuffix(base, filepath.Ext(base)),
		Encoding: enc,
	}

	if err := file.parse(bytes.NewReader(text)); err != nil {
		return nil, &models.AcquisitionError{Path: path, Err: err}
	}

	return file, nil
}

// Decode returns data as UTF-8. Valid UTF-8 is used as-is (minus a leading
// BOM); anything else is decoded as ISO-8859-1. Bytes that are not plausible
// Latin-1 text (NUL and C0 controls other than TAB, CR and LF) make the file
// undecodable.
func Decode(data []byte) ([]byte, Encoding, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, EncodingUTF8, nil
	}

	for _, b := range data {
		if b < 0x20 && b != '\t' && b != '\r' && b != '\n' {
			return nil, "", models.ErrUndecodable
		}
	}

	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrUndecodable, err)
	}
	return out, EncodingLatin1, nil
}

// NormalizeHeader lower-cases a column name and replaces spaces with underscores
func NormalizeHeader(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func (f *File) parse(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.LazyQuotes = true
	// 0: every record must have as many fields as the header

	header, err := cr.Read()
	if err == io.EOF {
		return errors.New("empty file: missing header row")
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}

	dec, err := csvutil.NewDecoder(cr, normalized...)
	if err != nil {
		return fmt.Errorf("failed to initialise decoder: %w", err)
	}

	for {
		record := &models.StagingRecord{NomeArquivo: f.Name}
		err := dec.Decode(record)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed CSV at record %d: %w", len(f.Records)+1, err)
		}

		if f.Records == nil {
			for _, i := range dec.Unused() {
				f.UnknownColumns = append(f.UnknownColumns, normalized[i])
			}
		}
		f.Records = append(f.Records, record)
	}

	return nil
}
