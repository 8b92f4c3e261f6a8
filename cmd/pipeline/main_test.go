package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accidents-dw/internal/models"
	"accidents-dw/internal/services"
)

func TestCheckSources(t *testing.T) {
	withFile := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(withFile, "a.csv"), []byte("data\n01/01/2023\n"), 0o600))
	empty := t.TempDir()
	missing := filepath.Join(t.TempDir(), "nope")

	tests := []struct {
		name    string
		opts    options
		wantErr error
	}{
		{"csv present", options{dataDir: withFile, stage: services.RunAll}, nil},
		{"empty directory", options{dataDir: empty, stage: services.RunAll, initSchema: true}, models.ErrNoDataFiles},
		{"missing directory", options{dataDir: missing, stage: services.RunStaging, initSchema: true}, os.ErrNotExist},
		{"warehouse stage ignores data dir", options{dataDir: missing, stage: services.RunWarehouse, initSchema: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSources(tt.opts)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			var acq *models.AcquisitionError
			require.True(t, errors.As(err, &acq), "error = %v, want AcquisitionError", err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
