package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UploadMetrics tracks upload cycles and the local control API
type UploadMetrics struct {
	registry *prometheus.Registry

	cyclesTotal      *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	cyclesInFlight   prometheus.Gauge
	rejectedTriggers *prometheus.CounterVec
	apiRequestsTotal *prometheus.CounterVec
}

// NewUploadMetrics creates the collectors on a private registry
func NewUploadMetrics() *UploadMetrics {
	registry := prometheus.NewRegistry()

	cyclesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenshotsender",
			Subsystem: "upload",
			Name:      "cycles_total",
			Help:      "Completed upload cycles by outcome.",
		},
		[]string{"outcome", "code"},
	)
	cycleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "screenshotsender",
			Subsystem: "upload",
			Name:      "cycle_duration_seconds",
			Help:      "Upload cycle duration from trigger to terminal status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	cyclesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "screenshotsender",
			Subsystem: "upload",
			Name:      "in_flight",
			Help:      "Upload cycles currently in progress.",
		},
	)
	rejectedTriggers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenshotsender",
			Subsystem: "upload",
			Name:      "rejected_triggers_total",
			Help:      "Triggers ignored because a cycle was in progress or rate limited.",
		},
		[]string{"source", "reason"},
	)
	apiRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenshotsender",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Control API requests by route and status.",
		},
		[]string{"route", "status"},
	)

	registry.MustRegister(
		cyclesTotal,
		cycleDuration,
		cyclesInFlight,
		rejectedTriggers,
		apiRequestsTotal,
	)

	return &UploadMetrics{
		registry:         registry,
		cyclesTotal:      cyclesTotal,
		cycleDuration:    cycleDuration,
		cyclesInFlight:   cyclesInFlight,
		rejectedTriggers: rejectedTriggers,
		apiRequestsTotal: apiRequestsTotal,
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *UploadMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CycleStarted marks a new cycle in flight
func (m *UploadMetrics) CycleStarted() {
	if m == nil {
		return
	}
	m.cyclesInFlight.Inc()
}

// CycleFinished records the outcome of a cycle
func (m *UploadMetrics) CycleFinished(outcome string, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cyclesInFlight.Dec()
	m.cyclesTotal.WithLabelValues(outcome, code).Inc()
	m.cycleDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// TriggerRejected records a trigger that did not start a cycle
func (m *UploadMetrics) TriggerRejected(source, reason string) {
	if m == nil {
		return
	}
	m.rejectedTriggers.WithLabelValues(source, reason).Inc()
}

// APIRequest records one control API request
func (m *UploadMetrics) APIRequest(route, status string) {
	if m == nil {
		return
	}
	m.apiRequestsTotal.WithLabelValues(route, status).Inc()
}

// Registry returns the underlying registry
func (m *UploadMetrics) Registry() *prometheus.Registry {
	return m.registry
}
