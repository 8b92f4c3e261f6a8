// Package testutil provides a throwaway SQLite warehouse for package tests.
package testutil

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"accidents-dw/internal/schema"
	"accidents-dw/pkg/database"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// Env bundles the dependencies every service and repository constructor takes
type Env struct {
	DB      *database.DB
	Logger  *logging.StructuredLogger
	Metrics *metrics.Collector
}

// NewLogger returns a logger that discards its output
func NewLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("accidents-dw-test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger
}

// NewSQLite opens a fresh SQLite warehouse with the schema applied.
// The database is closed when the test ends.
func NewSQLite(t testing.TB) *Env {
	t.Helper()

	logger := NewLogger()
	collector := metrics.NewCollector("test")

	db, err := database.Open(&database.Config{
		Driver:          database.DriverSQLite,
		Path:            filepath.Join(t.TempDir(), "warehouse.sqlite"),
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}, logger, collector)
	if err != nil {
		t.Fatalf("failed to open sqlite warehouse: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := schema.Apply(context.Background(), db, schema.Up); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &Env{DB: db, Logger: logger, Metrics: collector}
}
