// Package metrics exposes Prometheus instruments for install and delete operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voice_installer"

// Install results used as the "result" label.
const (
	ResultSuccess     = "success"
	ResultUnsupported = "unsupported"
	ResultError       = "error"
	// ResultPartial marks a delete that removed the record but not the directory.
	ResultPartial = "partial"
)

// Metrics groups the installer instruments. A nil *Metrics records nothing.
type Metrics struct {
	installs        *prometheus.CounterVec
	installDuration prometheus.Histogram
	deletes         *prometheus.CounterVec
	installed       prometheus.Gauge
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		installs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Voice package installs by result and package kind.",
		}, []string{"result", "kind"}),
		installDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Time spent staging, detecting and copying a voice package.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		deletes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Voice package deletes by outcome.",
		}, []string{"result"}),
		installed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_voices",
			Help:      "Number of records in the voice registry.",
		}),
	}
}

// ObserveInstall records one install attempt. kind is empty when no layout was detected.
func (m *Metrics) ObserveInstall(result, kind string, seconds float64) {
	if m == nil {
		return
	}

	if kind == "" {
		kind = "none"
	}

	m.installs.WithLabelValues(result, kind).Inc()
	m.installDuration.Observe(seconds)
}

// ObserveDelete records one delete with its outcome.
func (m *Metrics) ObserveDelete(result string) {
	if m == nil {
		return
	}

	m.deletes.WithLabelValues(result).Inc()
}

// SetRegistered sets the current registry size.
func (m *Metrics) SetRegistered(count int) {
	if m == nil {
		return
	}

	m.installed.Set(float64(count))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
