package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Collector provides application metrics collection.
// Each Collector owns its registry, so several can coexist in one process (tests).
type Collector struct {
	registry *prometheus.Registry

	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Staging Metrics
	StagingFilesTotal *prometheus.CounterVec
	StagingRowsTotal  prometheus.Counter
	StagingBatchSize  prometheus.Histogram

	// Warehouse Metrics
	DimensionRowsTotal *prometheus.CounterVec
	FactRowsTotal      prometheus.Counter
	StageDuration      *prometheus.HistogramVec

	// Pipeline Metrics
	PipelineRunsTotal   *prometheus.CounterVec
	PipelineErrorsTotal *prometheus.CounterVec
	LastSuccessUnixTime prometheus.Gauge

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		StagingFilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "staging_files_total",
				Help:      "Source CSV files read into staging, by detected encoding",
			},
			[]string{"encoding"},
		),

		StagingRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "staging_rows_loaded_total",
				Help:      "Total number of raw rows written to the staging relation",
			},
		),

		StagingBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "staging_batch_size",
				Help:      "Number of rows per bulk insert statement",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000},
			},
		),

		DimensionRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dimension_rows_inserted_total",
				Help:      "Dimension rows inserted, by dimension table",
			},
			[]string{"dimension"},
		),

		FactRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fact_rows_inserted_total",
				Help:      "Fact rows produced by fact assembly",
			},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),

		PipelineRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Pipeline runs by final status",
			},
			[]string{"status"},
		),

		PipelineErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_errors_total",
				Help:      "Fatal pipeline errors by stage",
			},
			[]string{"stage"},
		),

		LastSuccessUnixTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful pipeline run",
			},
		),

		DBQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}

	reg.MustRegister(
		c.APIRequestsTotal,
		c.APIRequestDuration,
		c.APIErrorsTotal,
		c.StagingFilesTotal,
		c.StagingRowsTotal,
		c.StagingBatchSize,
		c.DimensionRowsTotal,
		c.FactRowsTotal,
		c.StageDuration,
		c.PipelineRunsTotal,
		c.PipelineErrorsTotal,
		c.LastSuccessUnixTime,
		c.DBQueryDuration,
		c.DBConnectionPool,
		c.DBErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry exposes the collector's registry for /metrics handlers.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Push sends the current state of every metric to a Prometheus Pushgateway,
// replacing the previous group for job.
func (c *Collector) Push(gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(c.registry).Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// StageTimer starts a timer bound to the stage duration histogram.
func (c *Collector) StageTimer(stage string) *Timer {
	return c.NewTimer(c.StageDuration.WithLabelValues(stage))
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordStagingFile counts a decoded source file
func (c *Collector) RecordStagingFile(encoding string) {
	c.StagingFilesTotal.WithLabelValues(encoding).Inc()
}

// RecordDimensionRows adds inserted rows for a dimension table
func (c *Collector) RecordDimensionRows(dimension string, n int) {
	c.DimensionRowsTotal.WithLabelValues(dimension).Add(float64(n))
}

// RecordPipelineRun increments the run counter for a final status
func (c *Collector) RecordPipelineRun(status string) {
	c.PipelineRunsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		c.LastSuccessUnixTime.SetToCurrentTime()
	}
}

// RecordPipelineError increments the fatal error counter for a stage
func (c *Collector) RecordPipelineError(stage string) {
	c.PipelineErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
