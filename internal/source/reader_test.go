package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accidents-dw/internal/models"
)

const sampleHeader = "Data;Horario;N da Ocorrencia;Tipo de Ocorrencia;KM;Trecho;Sentido;Tipo de Acidente;Automovel;Moto;Ilesos;Mortos\n"

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"N da Ocorrencia":   "n_da_ocorrencia",
		"  Tipo de Acidente": "tipo_de_acidente",
		"KM":                "km",
		"trecho":            "trecho",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestDecode(t *testing.T) {
	t.Run("utf-8 passes through", func(t *testing.T) {
		out, enc, err := Decode([]byte("colisão"))
		require.NoError(t, err)
		assert.Equal(t, EncodingUTF8, enc)
		assert.Equal(t, "colisão", string(out))
	})

	t.Run("bom is stripped", func(t *testing.T) {
		out, enc, err := Decode([]byte("\xEF\xBB\xBFdata;km"))
		require.NoError(t, err)
		assert.Equal(t, EncodingUTF8, enc)
		assert.Equal(t, "data;km", string(out))
	})

	t.Run("latin-1 fallback", func(t *testing.T) {
		// "colisão" with ã as the single byte 0xE3
		out, enc, err := Decode([]byte("colis\xe3o\r\n"))
		require.NoError(t, err)
		assert.Equal(t, EncodingLatin1, enc)
		assert.Equal(t, "colisão\r\n", string(out))
	})

	t.Run("binary content is undecodable", func(t *testing.T) {
		_, _, err := Decode([]byte{0xFF, 0x00, 0x13, 0xFE})
		assert.ErrorIs(t, err, models.ErrUndecodable)
	})
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	content := sampleHeader +
		"01/02/2023;10:15;OC-1;Acidente;12,5;BR-116 km 10;Norte;Colisão traseira;2;0;1;\n" +
		"02/02/2023; ;OC-2;Acidente;3;BR-116 km 10;Sul;Capotamento;;1;;0\n"
	path := writeFile(t, dir, "concessionaria_a.csv", []byte(content))

	file, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "concessionaria_a", file.Name)
	assert.Equal(t, EncodingUTF8, file.Encoding)
	assert.Empty(t, file.UnknownColumns)
	require.Len(t, file.Records, 2)

	first := file.Records[0]
	assert.Equal(t, "concessionaria_a", first.NomeArquivo)
	assert.Equal(t, models.Text("01/02/2023"), first.Data)
	assert.Equal(t, models.Text("OC-1"), first.NDaOcorrencia)
	assert.Equal(t, models.Text("12,5"), first.Km)
	assert.Equal(t, models.Text("Colisão traseira"), first.TipoDeAcidente)
	assert.Equal(t, models.Text("2"), first.Automovel)
	assert.False(t, first.Mortos.Valid, "empty trailing cell is NULL")
	assert.False(t, first.Concessionaria.Valid, "missing column is NULL")

	second := file.Records[1]
	assert.False(t, second.Horario.Valid, "blank cell is NULL")
	assert.False(t, second.Automovel.Valid)
	assert.Equal(t, models.Text("0"), second.Mortos)
}

func TestReadFileLatin1(t *testing.T) {
	dir := t.TempDir()
	content := []byte(sampleHeader + "01/02/2023;10:15;OC-1;Acidente;1;BR-040;Sul;Colis\xe3o;1;0;1;0\n")
	path := writeFile(t, dir, "latin.csv", content)

	file, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, EncodingLatin1, file.Encoding)
	require.Len(t, file.Records, 1)
	assert.Equal(t, "Colisão", file.Records[0].TipoDeAcidente.String)
}

func TestReadFileUnknownColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "extra.csv", []byte("data;Observacao;trecho\n01/01/2023;x;BR-101\n"))

	file, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"observacao"}, file.UnknownColumns)
	require.Len(t, file.Records, 1)
	assert.Equal(t, "BR-101", file.Records[0].Trecho.String)
}

func TestReadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		wantIs  error
	}{
		{
			name:    "wrong field count",
			content: []byte("data;trecho\n01/01/2023;BR-101;extra\n"),
		},
		{
			name:    "empty file",
			content: []byte{},
		},
		{
			name:    "undecodable bytes",
			content: []byte("data;trecho\n\x00\xff;\xfe\n"),
			wantIs:  models.ErrUndecodable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "bad.csv", tt.content)

			_, err := ReadFile(path)
			require.Error(t, err)

			var acq *models.AcquisitionError
			require.True(t, errors.As(err, &acq))
			assert.Equal(t, path, acq.Path)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	t.Run("sorted csv files only", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "b.csv", nil)
		writeFile(t, dir, "a.CSV", nil)
		writeFile(t, dir, "notes.txt", nil)
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

		files, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a.CSV"), filepath.Join(dir, "b.csv")}, files)
	})

	t.Run("no csv files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "readme.md", nil)

		_, err := Discover(dir)
		assert.ErrorIs(t, err, models.ErrNoDataFiles)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Discover(filepath.Join(t.TempDir(), "absent"))
		var acq *models.AcquisitionError
		assert.True(t, errors.As(err, &acq))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("path is a file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "file.csv", nil)
		_, err := Discover(path)
		var acq *models.AcquisitionError
		assert.True(t, errors.As(err, &acq))
	})
}
