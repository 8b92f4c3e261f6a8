package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"accidents-dw/internal/config"
	"accidents-dw/internal/schema"
	"accidents-dw/pkg/database"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, schema.Direction(*direction)); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, direction schema.Direction) error {
	ctx := context.Background()
	logger := logging.NewStructuredLogger("accidents-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	db, err := database.Open(cfg.Database.Connection(), logger, metrics.NewCollector("accidents_migrate"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	fmt.Printf("Running migration: %s_create_schema.%s (%s)\n", schema.Version, direction, db.Dialect())

	if err := schema.Apply(ctx, db, direction); err != nil {
		return err
	}

	logger.Info(ctx, "[MIGRATION_COMPLETE] Schema migration applied", logging.Fields{
		"version":   schema.Version,
		"direction": string(direction),
		"dialect":   db.Dialect().String(),
	})
	fmt.Println("Migration completed successfully")
	return nil
}
