package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adnw/internal/keyboard"
)

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry("adnw")
	a := r.Counter("x_total", "x")
	b := r.Counter("x_total", "x")
	a.Inc()
	b.Add(2)
	assert.Same(t, a, b)
	assert.Equal(t, uint64(3), a.Value())
	assert.Equal(t, "adnw_x_total", a.Name())
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("lat", "latency", []float64{1, 2})
	h.Observe(0.5)
	h.Observe(2)
	h.Observe(5)

	var b strings.Builder
	require.NoError(t, r.WritePrometheus(&b))
	out := b.String()
	assert.Contains(t, out, `lat_bucket{le="1"} 1`)
	assert.Contains(t, out, `lat_bucket{le="2"} 2`)
	assert.Contains(t, out, `lat_bucket{le="+Inf"} 3`)
	assert.Contains(t, out, "lat_count 3")
	assert.Equal(t, uint64(3), h.Count())
}

func TestPrometheusOrder(t *testing.T) {
	r := NewRegistry("adnw")
	r.Counter("b_total", "b").Inc()
	r.Counter("a_total", "a").Inc()

	var b strings.Builder
	require.NoError(t, r.WritePrometheus(&b))
	out := b.String()
	assert.Less(t, strings.Index(out, "adnw_a_total"), strings.Index(out, "adnw_b_total"))
	assert.Contains(t, out, "# TYPE adnw_a_total counter\nadnw_a_total 1\n")
}

func TestPipelineObserve(t *testing.T) {
	p := NewPipeline(NewRegistry("adnw"))
	p.Observe(keyboard.SignalActiveOverflow | keyboard.SignalLayerConflict)
	p.Observe(keyboard.SignalLayerConflict)

	assert.Equal(t, uint64(1), p.ActiveOverflow.Value())
	assert.Equal(t, uint64(0), p.ReportOverflow.Value())
	assert.Equal(t, uint64(2), p.LayerConflict.Value())
	assert.Equal(t, uint64(2), p.Signals()[keyboard.SignalLayerConflict.String()])
}

func TestPipelinePolled(t *testing.T) {
	p := NewPipeline(NewRegistry("adnw"))
	p.Polled(time.Millisecond, false, true)
	p.Polled(time.Millisecond, true, true)
	p.Polled(time.Millisecond, false, false)
	p.SendFailed()
	p.SetMouseMode(true)

	assert.Equal(t, uint64(3), p.Polls.Value())
	assert.Equal(t, uint64(2), p.ReportsSent.Value())
	assert.Equal(t, uint64(1), p.ReportsSuppress.Value())
	assert.Equal(t, uint64(1), p.MacroReports.Value())
	assert.Equal(t, uint64(1), p.SendErrors.Value())
	assert.Equal(t, int64(1), p.MouseMode.Value())
	assert.Equal(t, uint64(3), p.PollDuration.Count())
}

func TestHTTPHandler(t *testing.T) {
	p := NewPipeline(NewRegistry("adnw"))
	p.ReportsSent.Add(4)
	h := p.Registry().HTTPHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adnw_reports_sent_total 4")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"adnw_reports_sent_total":4`)
}
