package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterGauges(t *testing.T) {
	e := NewExporter()
	e.SetCounter(0, "SQ_WAVES", 81236)
	e.SetCounter(1, "SQ_WAVES", 200)
	e.SetCounter(0, "GRBM_COUNT", 12345)

	assert.Equal(t, float64(81236), testutil.ToFloat64(e.values.WithLabelValues("0", "SQ_WAVES")))
	assert.Equal(t, float64(200), testutil.ToFloat64(e.values.WithLabelValues("1", "SQ_WAVES")))
	assert.Equal(t, float64(12345), testutil.ToFloat64(e.values.WithLabelValues("0", "GRBM_COUNT")))
}

func TestExporterValidity(t *testing.T) {
	e := NewExporter()
	assert.Equal(t, float64(1), testutil.ToFloat64(e.valid), "sessions start valid")

	e.SetValid(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(e.valid))
}

func TestExporterExposition(t *testing.T) {
	e := NewExporter()
	e.SetCounter(0, "SQ_WAVES", 5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	e.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `omnistat_rocprofiler{card="0",counter="SQ_WAVES"} 5`)
	assert.Contains(t, body, "omnistat_rocprofiler_valid 1")
}
