package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported by the live-session service.
type Metrics struct {
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	SessionTransitionsTotal    *prometheus.CounterVec
	ProviderCallsTotal         *prometheus.CounterVec
	ProviderCallDuration       *prometheus.HistogramVec
	RecordingIngestionsTotal   *prometheus.CounterVec
	RecordingRepairsTotal      *prometheus.CounterVec
}

// New builds the collectors curried with the service label and registers them.
func New(serviceName string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"service", "method", "path", "status"},
		).MustCurryWith(labels),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		).MustCurryWith(labels).(*prometheus.HistogramVec),
		SessionTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_transitions_total",
				Help: "Session lifecycle operations by outcome.",
			},
			[]string{"service", "operation", "result"},
		).MustCurryWith(labels),
		ProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_calls_total",
				Help: "Calls made to the meeting provider by outcome.",
			},
			[]string{"service", "operation", "result"},
		).MustCurryWith(labels),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_call_duration_seconds",
				Help:    "Latency of meeting provider calls including retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		).MustCurryWith(labels).(*prometheus.HistogramVec),
		RecordingIngestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recording_ingestions_total",
				Help: "Recording ingestions by path and outcome.",
			},
			[]string{"service", "path", "result"},
		).MustCurryWith(labels),
		RecordingRepairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recording_repairs_total",
				Help: "Container repair runs by outcome.",
			},
			[]string{"service", "outcome"},
		).MustCurryWith(labels),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDurationSeconds,
			m.SessionTransitionsTotal,
			m.ProviderCallsTotal,
			m.ProviderCallDuration,
			m.RecordingIngestionsTotal,
			m.RecordingRepairsTotal,
		)
	}
	return m
}

// ObserveTransition counts a session lifecycle operation.
func (m *Metrics) ObserveTransition(operation, result string) {
	if m == nil {
		return
	}
	m.SessionTransitionsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveProviderCall counts a provider call and records its latency.
func (m *Metrics) ObserveProviderCall(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCallsTotal.WithLabelValues(operation, result).Inc()
	m.ProviderCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveIngestion counts a recording ingestion on the pull or push path.
func (m *Metrics) ObserveIngestion(path, result string) {
	if m == nil {
		return
	}
	m.RecordingIngestionsTotal.WithLabelValues(path, result).Inc()
}

// ObserveRepair counts a finished repair run.
func (m *Metrics) ObserveRepair(outcome string) {
	if m == nil {
		return
	}
	m.RecordingRepairsTotal.WithLabelValues(outcome).Inc()
}
