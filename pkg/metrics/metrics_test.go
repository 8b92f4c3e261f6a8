package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsCoexist(t *testing.T) {
	a := NewCollector("one")
	b := NewCollector("one")

	a.RecordPipelineRun("success")

	assert.Equal(t, float64(1), testutil.ToFloat64(a.PipelineRunsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.PipelineRunsTotal.WithLabelValues("success")))
}

func TestRecordPipelineRun(t *testing.T) {
	c := NewCollector("test")

	c.RecordPipelineRun("failure")
	assert.Zero(t, testutil.ToFloat64(c.LastSuccessUnixTime))

	c.RecordPipelineRun("success")
	assert.Positive(t, testutil.ToFloat64(c.LastSuccessUnixTime))
}

func TestRecordDimensionRows(t *testing.T) {
	c := NewCollector("test")

	c.RecordDimensionRows("dim_rodovia", 3)
	c.RecordDimensionRows("dim_rodovia", 2)

	assert.Equal(t, float64(5), testutil.ToFloat64(c.DimensionRowsTotal.WithLabelValues("dim_rodovia")))
}

func TestStageTimer(t *testing.T) {
	c := NewCollector("test")

	d := c.StageTimer("staging").ObserveDuration()

	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
	assert.Equal(t, 1, testutil.CollectAndCount(c.StageDuration))
}

func TestPushDisabledWithoutURL(t *testing.T) {
	assert.NoError(t, NewCollector("test").Push("", "job"))
}

func TestPush(t *testing.T) {
	var hits atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCollector("test")
	c.FactRowsTotal.Add(9)

	require.NoError(t, c.Push(srv.URL, "accidents_etl"))
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, strings.HasPrefix(path.Load().(string), "/metrics/job/accidents_etl"))
}

func TestPushReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewCollector("test").Push(srv.URL, "accidents_etl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.URL)
}
