// Package metrics provides Prometheus observability for the custody server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the custody server collectors.
type Metrics struct {
	TicksTotal         prometheus.Counter
	TickLatency        prometheus.Histogram
	ArrestsTotal       prometheus.Counter
	ReleasesTotal      prometheus.Counter
	ActiveSentences    prometheus.Gauge
	FinesAssessedTotal prometheus.Counter
	WSConnections      prometheus.Gauge
}

// New registers the collectors on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on a specific registerer. Tests pass a
// fresh registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_ticks_total",
			Help: "Total simulated-time units processed",
		}),
		TickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "custody_tick_latency_seconds",
			Help:    "Time spent applying one discrete tick to all active sentences",
			Buckets: prometheus.DefBuckets,
		}),
		ArrestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_arrests_total",
			Help: "Total arrests booked",
		}),
		ReleasesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_releases_total",
			Help: "Total releases, natural completions and early stops",
		}),
		ActiveSentences: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custody_active_sentences",
			Help: "Current number of active sentences",
		}),
		FinesAssessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_fines_assessed_total",
			Help: "Sum of all assessed fines in currency units",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custody_ws_connections",
			Help: "Current number of connected WebSocket clients",
		}),
	}
}

// ObserveTick records one tick cycle completion.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.TicksTotal.Inc()
	m.TickLatency.Observe(d.Seconds())
}

// IncArrests records a booked arrest.
func (m *Metrics) IncArrests() {
	m.ArrestsTotal.Inc()
}

// IncReleases records a release of either kind.
func (m *Metrics) IncReleases() {
	m.ReleasesTotal.Inc()
}

// SetActiveSentences updates the active-sentence gauge.
func (m *Metrics) SetActiveSentences(n int) {
	m.ActiveSentences.Set(float64(n))
}

// AddFineAssessed accumulates an assessed fine amount.
func (m *Metrics) AddFineAssessed(amount int64) {
	if amount > 0 {
		m.FinesAssessedTotal.Add(float64(amount))
	}
}

// RecordWSConnection tracks WebSocket connect/disconnect deltas.
func (m *Metrics) RecordWSConnection(delta int) {
	m.WSConnections.Add(float64(delta))
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
