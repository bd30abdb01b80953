// Package metrics exposes Prometheus instrumentation for scans, change
// detection, and notification delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the scan pipeline and watcher.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Scan runs by result ("success", "failure")
	ScansTotal *prometheus.CounterVec

	// End-to-end scan duration by phase ("classify", "resolve", "save", "total")
	ScanDuration *prometheus.HistogramVec

	// Group membership after the most recent scan or change
	GroupSize *prometheus.GaugeVec

	// Classification lookups by outcome ("primary", "secondary", "other", "error")
	Lookups *prometheus.CounterVec

	// Label resolutions by outcome ("resolved", "sentinel")
	LabelResolutions *prometheus.CounterVec

	// Diff events emitted by group and direction
	DiffEvents *prometheus.CounterVec

	// Notification deliveries by result ("sent", "failed")
	Notifications *prometheus.CounterVec

	// 1 while a scan is running
	ScanRunning prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry so multiple
// instances (tests, CLI one-shots) never collide on the default registerer.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustwatch_scans_total",
			Help: "Total scan runs by result",
		}, []string{"result"}),

		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trustwatch_scan_duration_seconds",
			Help:    "Duration of scan phases",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"phase"}),

		GroupSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trustwatch_group_members",
			Help: "Number of users in each trust group",
		}, []string{"group"}),

		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustwatch_classification_lookups_total",
			Help: "Classification lookups by outcome",
		}, []string{"outcome"}),

		LabelResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustwatch_label_resolutions_total",
			Help: "Display name resolutions by outcome",
		}, []string{"outcome"}),

		DiffEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustwatch_diff_events_total",
			Help: "Membership change events by group and direction",
		}, []string{"group", "direction"}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustwatch_notifications_total",
			Help: "Notification deliveries by result",
		}, []string{"result"}),

		ScanRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trustwatch_scan_running",
			Help: "1 while a scan is in progress",
		}),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records a completed scan run.
func (m *Metrics) ObserveScan(success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.ScansTotal.WithLabelValues(result).Inc()
	m.ScanDuration.WithLabelValues("total").Observe(d.Seconds())
}

// ObservePhase records the duration of a single pipeline phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m != nil {
		m.ScanDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// SetGroupSize records current group membership.
func (m *Metrics) SetGroupSize(group string, n int) {
	if m != nil {
		m.GroupSize.WithLabelValues(group).Set(float64(n))
	}
}

// IncLookup records a classification lookup outcome.
func (m *Metrics) IncLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}

// IncLabel records a label resolution outcome.
func (m *Metrics) IncLabel(outcome string) {
	if m != nil {
		m.LabelResolutions.WithLabelValues(outcome).Inc()
	}
}

// IncDiffEvent records an emitted change event.
func (m *Metrics) IncDiffEvent(group, direction string) {
	if m != nil {
		m.DiffEvents.WithLabelValues(group, direction).Inc()
	}
}

// IncNotification records a notification delivery result.
func (m *Metrics) IncNotification(sent bool) {
	if m == nil {
		return
	}
	if sent {
		m.Notifications.WithLabelValues("sent").Inc()
		return
	}
	m.Notifications.WithLabelValues("failed").Inc()
}

// SetScanRunning toggles the scan-in-progress gauge.
func (m *Metrics) SetScanRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.ScanRunning.Set(1)
		return
	}
	m.ScanRunning.Set(0)
}
