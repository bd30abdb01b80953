package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustwatch/internal/metrics"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a := metrics.New()
	b := metrics.New()
	a.IncLookup("primary")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Lookups.WithLabelValues("primary")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Lookups.WithLabelValues("primary")))
}

func TestRecorders(t *testing.T) {
	m := metrics.New()
	m.ObserveScan(true, 2*time.Second)
	m.ObserveScan(false, time.Second)
	m.SetGroupSize("primary", 4)
	m.IncLabel("sentinel")
	m.IncDiffEvent("secondary", "added")
	m.IncNotification(true)
	m.IncNotification(false)
	m.SetScanRunning(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("failure")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.GroupSize.WithLabelValues("primary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LabelResolutions.WithLabelValues("sentinel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiffEvents.WithLabelValues("secondary", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanRunning))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveScan(true, time.Second)
	m.ObservePhase("classify", time.Second)
	m.SetGroupSize("primary", 1)
	m.IncLookup("error")
	m.IncLabel("resolved")
	m.IncDiffEvent("primary", "removed")
	m.IncNotification(true)
	m.SetScanRunning(false)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.IncDiffEvent("primary", "added")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `trustwatch_diff_events_total{direction="added",group="primary"} 1`))
}
