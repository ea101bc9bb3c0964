// Package metrics provides Prometheus metrics for pdfmark.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics holds the service's collectors on a private registry.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	AnnotationSaves *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	Deletes         *prometheus.CounterVec
	OrphanedBlobs   prometheus.Counter
	ActiveSessions  prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		AnnotationSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfmark_annotation_saves_total",
				Help: "Full-replace annotation saves by outcome",
			},
			[]string{"status"},
		),
		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfmark_uploads_total",
				Help: "Document uploads by outcome",
			},
			[]string{"status"},
		),
		Deletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfmark_deletes_total",
				Help: "Document deletes by outcome",
			},
			[]string{"status"},
		),
		OrphanedBlobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "pdfmark_orphaned_blobs_total",
			Help: "Deletes whose stored bytes could not be removed",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdfmark_active_sessions",
			Help: "Open live annotation sessions",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

// ObserveSave records one annotation save.
func (m *Metrics) ObserveSave(err error) {
	if m == nil {
		return
	}
	m.AnnotationSaves.WithLabelValues(outcome(err)).Inc()
}

// ObserveUpload records one upload.
func (m *Metrics) ObserveUpload(err error) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(outcome(err)).Inc()
}

// ObserveDelete records one delete and whether its blob was left behind.
func (m *Metrics) ObserveDelete(err error, orphaned bool) {
	if m == nil {
		return
	}
	m.Deletes.WithLabelValues(outcome(err)).Inc()
	if orphaned {
		m.OrphanedBlobs.Inc()
	}
}

// SessionOpened increments the live session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the live session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
