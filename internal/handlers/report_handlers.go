package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"accidents-dw/internal/models"
	"accidents-dw/internal/repository"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// ReportReader is the read side of the warehouse used by the API.
// *services.ReportService satisfies it.
type ReportReader interface {
	AccidentsByYear(ctx context.Context) ([]*models.YearCount, error)
	AccidentsByRoad(ctx context.Context, filter repository.RoadFilter) ([]*models.RoadCount, error)
	VictimsByType(ctx context.Context, year *int) ([]*models.VictimCount, error)
	TableCounts(ctx context.Context) ([]*models.TableCount, error)
	HealthCheck(ctx context.Context) error
}

// ReportHandler handles reporting API endpoints
type ReportHandler struct {
	reports ReportReader
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports ReportReader, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListResponse wraps a report result set
type ListResponse struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

// GetAccidentsByYear handles GET /api/reports/accidents/by-year
func (h *ReportHandler) GetAccidentsByYear(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/reports/accidents/by-year"
	defer h.observe(endpoint, time.Now())

	rows, err := h.reports.AccidentsByYear(r.Context())
	if err != nil {
		h.internalError(w, r, endpoint, "failed to retrieve accidents by year", err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, ListResponse{Data: rows, Count: len(rows)}, http.StatusOK)
}

// GetAccidentsByRoad handles GET /api/reports/accidents/by-road
func (h *ReportHandler) GetAccidentsByRoad(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/reports/accidents/by-road"
	defer h.observe(endpoint, time.Now())

	filter := repository.RoadFilter{Limit: 100}

	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	filter.Year = year

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > 1000 {
			h.sendError(w, r, "invalid limit, expected integer between 1 and 1000", http.StatusBadRequest)
			return
		}
		filter.Limit = l
	}

	rows, err := h.reports.AccidentsByRoad(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, endpoint, "failed to retrieve accidents by road", err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, ListResponse{Data: rows, Count: len(rows)}, http.StatusOK)
}

// GetVictimsByType handles GET /api/reports/victims
func (h *ReportHandler) GetVictimsByType(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/reports/victims"
	defer h.observe(endpoint, time.Now())

	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	rows, err := h.reports.VictimsByType(r.Context(), year)
	if err != nil {
		h.internalError(w, r, endpoint, "failed to retrieve victims by type", err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, ListResponse{Data: rows, Count: len(rows)}, http.StatusOK)
}

// GetTableCounts handles GET /api/warehouse/tables
func (h *ReportHandler) GetTableCounts(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/warehouse/tables"
	defer h.observe(endpoint, time.Now())

	rows, err := h.reports.TableCounts(r.Context())
	if err != nil {
		h.internalError(w, r, endpoint, "failed to retrieve table counts", err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, ListResponse{Data: rows, Count: len(rows)}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ReportHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.reports.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Warehouse unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// RequestID attaches a correlation id to the request context and echoes it
// in the response. A client-supplied X-Request-ID is reused.
func (h *ReportHandler) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

// yearParam parses the optional year query parameter. It writes a 400 and
// returns ok=false when the value is malformed.
func (h *ReportHandler) yearParam(w http.ResponseWriter, r *http.Request) (year *int, ok bool) {
	yearStr := r.URL.Query().Get("year")
	if yearStr == "" {
		return nil, true
	}
	y, err := strconv.Atoi(yearStr)
	if err != nil || y < 1900 || y > 2100 {
		h.sendError(w, r, "invalid year, expected a four-digit year", http.StatusBadRequest)
		return nil, false
	}
	return &y, true
}

func (h *ReportHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *ReportHandler) internalError(w http.ResponseWriter, r *http.Request, endpoint, message string, err error) {
	h.logger.Error(r.Context(), "[API_REPORT_ERROR] Report query failed", logging.Fields{
		"endpoint": endpoint,
		"query":    r.URL.RawQuery,
	}, err)
	h.metrics.RecordAPIError("internal_error", endpoint)
	h.sendError(w, r, message, http.StatusInternalServerError)
}

// sendJSON sends a JSON response
func (h *ReportHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn(context.Background(), "[API_ENCODE_ERROR] Failed to write response", logging.Fields{
			"error": err.Error(),
		})
	}
}

// sendError sends an error response
func (h *ReportHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all reporting API routes
func (h *ReportHandler) RegisterRoutes(router *mux.Router) {
	router.Use(h.RequestID)
	router.HandleFunc("/api/reports/accidents/by-year", h.GetAccidentsByYear).Methods("GET")
	router.HandleFunc("/api/reports/accidents/by-road", h.GetAccidentsByRoad).Methods("GET")
	router.HandleFunc("/api/reports/victims", h.GetVictimsByType).Methods("GET")
	router.HandleFunc("/api/warehouse/tables", h.GetTableCounts).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
