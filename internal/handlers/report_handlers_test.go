package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accidents-dw/internal/models"
	"accidents-dw/internal/repository"
	"accidents-dw/internal/testutil"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

type fakeReports struct {
	err       error
	healthErr error

	gotFilter repository.RoadFilter
	gotYear   *int
	gotCorrID string
}

func (f *fakeReports) AccidentsByYear(ctx context.Context) ([]*models.YearCount, error) {
	f.gotCorrID = logging.CorrelationID(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return []*models.YearCount{{Ano: 2022, Acidentes: 1}, {Ano: 2023, Acidentes: 4}}, nil
}

func (f *fakeReports) AccidentsByRoad(_ context.Context, filter repository.RoadFilter) ([]*models.RoadCount, error) {
	f.gotFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []*models.RoadCount{{Trecho: models.Text("BR-116"), Sentido: models.Text("Norte"), Acidentes: 3}}, nil
}

func (f *fakeReports) VictimsByType(_ context.Context, year *int) ([]*models.VictimCount, error) {
	f.gotYear = year
	if f.err != nil {
		return nil, f.err
	}
	return []*models.VictimCount{{TipoVitima: "mortos", Vitimas: 1}}, nil
}

func (f *fakeReports) TableCounts(context.Context) ([]*models.TableCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*models.TableCount{{Table: "stg_acidentes", Rows: 5}}, nil
}

func (f *fakeReports) HealthCheck(context.Context) error {
	return f.healthErr
}

func newRouter(reports ReportReader) *mux.Router {
	router := mux.NewRouter()
	NewReportHandler(reports, testutil.NewLogger(), metrics.NewCollector("test")).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetAccidentsByYear(t *testing.T) {
	reports := &fakeReports{}
	rec := serve(newRouter(reports), "/api/reports/accidents/by-year", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Data  []models.YearCount `json:"data"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 4, body.Data[1].Acidentes)
}

func TestRequestID(t *testing.T) {
	t.Run("generated when absent", func(t *testing.T) {
		reports := &fakeReports{}
		rec := serve(newRouter(reports), "/api/reports/accidents/by-year", nil)

		id := rec.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, reports.gotCorrID)
	})

	t.Run("client value reused", func(t *testing.T) {
		reports := &fakeReports{}
		header := http.Header{}
		header.Set(RequestIDHeader, "req-42")
		rec := serve(newRouter(reports), "/api/reports/accidents/by-year", header)

		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-42", reports.gotCorrID)
	})
}

func TestRequestIDHeaderCaseInsensitive(t *testing.T) {
	reports := &fakeReports{}
	req := httptest.NewRequest(http.MethodGet, "/api/reports/accidents/by-year", nil)
	req.Header.Set("x-request-id", "lower-7")
	rec := httptest.NewRecorder()
	newRouter(reports).ServeHTTP(rec, req)

	assert.Equal(t, "lower-7", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "lower-7", reports.gotCorrID)
}

func TestGetAccidentsByRoadParams(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantLimit int
		wantYear  int
	}{
		{"defaults", "/api/reports/accidents/by-road", http.StatusOK, 100, 0},
		{"year and limit", "/api/reports/accidents/by-road?year=2023&limit=5", http.StatusOK, 5, 2023},
		{"limit zero", "/api/reports/accidents/by-road?limit=0", http.StatusBadRequest, 0, 0},
		{"limit too large", "/api/reports/accidents/by-road?limit=5000", http.StatusBadRequest, 0, 0},
		{"limit not a number", "/api/reports/accidents/by-road?limit=ten", http.StatusBadRequest, 0, 0},
		{"year not a number", "/api/reports/accidents/by-road?year=abc", http.StatusBadRequest, 0, 0},
		{"year out of range", "/api/reports/accidents/by-road?year=23", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := &fakeReports{}
			rec := serve(newRouter(reports), tt.target, nil)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantCode, resp.Code)
				assert.NotEmpty(t, resp.Message)
				return
			}

			assert.Equal(t, tt.wantLimit, reports.gotFilter.Limit)
			if tt.wantYear == 0 {
				assert.Nil(t, reports.gotFilter.Year)
			} else {
				require.NotNil(t, reports.gotFilter.Year)
				assert.Equal(t, tt.wantYear, *reports.gotFilter.Year)
			}
		})
	}
}

func TestGetVictimsByType(t *testing.T) {
	reports := &fakeReports{}
	rec := serve(newRouter(reports), "/api/reports/victims?year=2022", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, reports.gotYear)
	assert.Equal(t, 2022, *reports.gotYear)
	assert.Contains(t, rec.Body.String(), `"tipo_vitima":"mortos"`)
}

func TestInternalErrors(t *testing.T) {
	reports := &fakeReports{err: errors.New("connection reset")}
	router := newRouter(reports)

	for _, target := range []string{
		"/api/reports/accidents/by-year",
		"/api/reports/accidents/by-road",
		"/api/reports/victims",
		"/api/warehouse/tables",
	} {
		t.Run(target, func(t *testing.T) {
			rec := serve(router, target, nil)
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotContains(t, resp.Message, "connection reset")
		})
	}
}

func TestHealthCheck(t *testing.T) {
	rec := serve(newRouter(&fakeReports{}), "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = serve(newRouter(&fakeReports{healthErr: errors.New("down")}), "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

func TestMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/warehouse/tables", nil)
	rec := httptest.NewRecorder()
	newRouter(&fakeReports{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
