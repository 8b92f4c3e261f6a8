package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"accidents-dw/internal/config"
	"accidents-dw/internal/models"
	"accidents-dw/internal/repository"
	"accidents-dw/internal/schema"
	"accidents-dw/internal/services"
	"accidents-dw/internal/source"
	"accidents-dw/pkg/database"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

const version = "1.0.0"

type options struct {
	dataDir        string
	batchSize      int
	stage          string
	initSchema     bool
	dryRun         bool
	pushgatewayURL string
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	opts := options{}
	flag.StringVar(&opts.dataDir, "data-dir", cfg.Pipeline.DataDir, "Directory containing the accident CSV files")
	flag.IntVar(&opts.batchSize, "batch-size", cfg.Pipeline.BatchSize, "Rows per bulk insert statement")
	flag.StringVar(&opts.stage, "stage", services.RunAll, "Stages to run: all, staging or warehouse")
	flag.BoolVar(&opts.initSchema, "init-schema", false, "Create the warehouse schema before running")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Decode the CSV files and report what would be staged, without touching the database")
	flag.StringVar(&opts.pushgatewayURL, "pushgateway-url", cfg.Metrics.PushgatewayURL, "Prometheus Pushgateway URL; empty disables pushing")
	flag.Parse()

	cfg.Pipeline.DataDir = opts.dataDir
	cfg.Pipeline.BatchSize = opts.batchSize
	cfg.Metrics.PushgatewayURL = opts.pushgatewayURL

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("accidents-pipeline", version, logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.dryRun {
		err = dryRun(ctx, logger, opts.dataDir)
	} else {
		err = run(ctx, cfg, opts, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup runs on failure
func run(ctx context.Context, cfg *config.Config, opts options, logger *logging.StructuredLogger) error {
	logger.Info(ctx, "[PIPELINE_CLI_START] Starting accident warehouse load", logging.Fields{
		"version":    version,
		"driver":     cfg.Database.Driver,
		"data_dir":   opts.dataDir,
		"batch_size": opts.batchSize,
		"stage":      opts.stage,
	})

	metricsCollector := metrics.NewCollector("accidents_etl")
	defer func() {
		if err := metricsCollector.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			logger.Warn(ctx, "[METRICS_PUSH_ERROR] Failed to push metrics", logging.Fields{
				"url":   cfg.Metrics.PushgatewayURL,
				"error": err.Error(),
			})
		}
	}()

	if err := checkSources(opts); err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Connection(), logger, metricsCollector)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if opts.initSchema {
		if err := schema.Apply(ctx, db, schema.Up); err != nil {
			return fmt.Errorf("failed to initialise schema: %w", err)
		}
		logger.Info(ctx, "[SCHEMA_READY] Warehouse schema applied", logging.Fields{
			"version": schema.Version,
			"dialect": db.Dialect().String(),
		})
	}

	stagingRepo := repository.NewStagingRepository(db, logger, metricsCollector)
	warehouseRepo := repository.NewWarehouseRepository(db, logger, metricsCollector)

	stagingService := services.NewStagingService(stagingRepo, logger, metricsCollector)
	warehouseService := services.NewWarehouseService(stagingRepo, warehouseRepo, logger, metricsCollector)
	pipeline := services.NewPipelineService(stagingService, warehouseService, logger, metricsCollector)

	result, err := pipeline.Run(ctx, services.RunOptions{
		DataDir:   opts.dataDir,
		BatchSize: opts.batchSize,
		Stage:     opts.stage,
	})
	if result != nil {
		printResult(result)
	}
	if err != nil {
		var integrity *models.IntegrityError
		if errors.As(err, &integrity) {
			fmt.Printf("Dangling fact references: %d columns affected\n", len(integrity.Dangling))
		}
		return err
	}
	return nil
}

// checkSources fails fast on a missing or empty data directory so that
// schema initialisation never runs ahead of an acquisition error.
func checkSources(opts options) error {
	if opts.stage == services.RunWarehouse {
		return nil
	}
	_, err := source.Discover(opts.dataDir)
	return err
}

func printResult(result *services.RunResult) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("PIPELINE RUN %s\n", result.RunID)
	fmt.Println(strings.Repeat("=", 80))

	if s := result.Staging; s != nil {
		fmt.Printf("Files staged:       %d\n", len(s.Files))
		for _, f := range s.Files {
			fmt.Printf("  - %-30s %-8s %d rows\n", f.Name, f.Encoding, f.Rows)
			if len(f.UnknownColumns) > 0 {
				fmt.Printf("    ignored columns: %s\n", strings.Join(f.UnknownColumns, ", "))
			}
		}
		fmt.Printf("Staging rows:       %d\n", s.TotalRows)
	}

	if d := result.Dimensions; d != nil {
		names := make([]string, 0, len(d.Rows))
		for name := range d.Rows {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-20s%d\n", name+":", d.Rows[name])
		}
		fmt.Printf("Fact rows:          %d\n", result.FactRows)
	}

	fmt.Printf("Duration:           %v\n", result.Duration)
}

// dryRun decodes every source file and prints what a staging load would
// contain. Nothing is written.
func dryRun(ctx context.Context, logger *logging.StructuredLogger, dataDir string) error {
	paths, err := source.Discover(dataDir)
	if err != nil {
		return err
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("DRY RUN - NO DATABASE WRITES")
	fmt.Println(strings.Repeat("=", 80))

	total := 0
	for _, path := range paths {
		file, err := source.ReadFile(path)
		if err != nil {
			return err
		}
		total += len(file.Records)

		withOccurrence := 0
		for _, r := range file.Records {
			if r.NDaOcorrencia.Valid {
				withOccurrence++
			}
		}

		logger.Info(ctx, "[DRY_RUN_FILE] Source file decoded", logging.Fields{
			"file":     file.Name,
			"encoding": string(file.Encoding),
			"rows":     len(file.Records),
		})
		fmt.Printf("%-30s %-8s rows=%d with_occurrence=%d\n", file.Name, file.Encoding, len(file.Records), withOccurrence)
		if len(file.UnknownColumns) > 0 {
			fmt.Printf("  ignored columns: %s\n", strings.Join(file.UnknownColumns, ", "))
		}
	}

	fmt.Printf("\nFiles: %d  Rows: %d\n", len(paths), total)
	return nil
}
