package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the entry workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	backupWrite     *prometheus.HistogramVec
	backupLoad      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	substitutions   *prometheus.CounterVec
	rosterUploads   *prometheus.CounterVec
	exportRenders   *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	backupWrite := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "session_backup_write_seconds",
		Help:    "Latency of session snapshot writes",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"driver", "outcome"})

	backupLoad := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_backup_loads_total",
		Help: "Snapshot loads at session start by outcome",
	}, []string{"driver", "outcome"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_transitions_total",
		Help: "Committed session transitions by kind",
	}, []string{"kind"})

	substitutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "time_substitutions_total",
		Help: "Malformed time inputs replaced by defaults",
	}, []string{"field"})

	rosterUploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_uploads_total",
		Help: "Roster uploads by outcome",
	}, []string{"outcome"})

	exportRenders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_renders_total",
		Help: "Rendered attendance sheets by format",
	}, []string{"format"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, backupWrite, backupLoad, transitions, substitutions, rosterUploads, exportRenders, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		backupWrite:     backupWrite,
		backupLoad:      backupLoad,
		transitions:     transitions,
		substitutions:   substitutions,
		rosterUploads:   rosterUploads,
		exportRenders:   exportRenders,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveBackupWrite records one snapshot write.
func (m *MetricsService) ObserveBackupWrite(driver string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.backupWrite.WithLabelValues(driver, outcome(ok)).Observe(duration.Seconds())
}

// RecordBackupLoad counts a session-start load as restored, empty or degraded.
func (m *MetricsService) RecordBackupLoad(driver, result string) {
	if m == nil {
		return
	}
	m.backupLoad.WithLabelValues(driver, result).Inc()
}

// RecordTransition counts a committed transition.
func (m *MetricsService) RecordTransition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

// RecordSubstitution counts a defaulted time field.
func (m *MetricsService) RecordSubstitution(field string) {
	if m == nil {
		return
	}
	m.substitutions.WithLabelValues(field).Inc()
}

// RecordRosterUpload counts a roster upload attempt.
func (m *MetricsService) RecordRosterUpload(ok bool) {
	if m == nil {
		return
	}
	m.rosterUploads.WithLabelValues(outcome(ok)).Inc()
}

// RecordExport counts a rendered sheet.
func (m *MetricsService) RecordExport(format string) {
	if m == nil {
		return
	}
	m.exportRenders.WithLabelValues(format).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
