package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors exported by the playback engine
type Metrics struct {
	TracksStarted       prometheus.Counter
	MaterializeFailures *prometheus.CounterVec
	RelayBytes          prometheus.Counter
	GateWait            prometheus.Histogram
	Crossfades          prometheus.Counter
	RadioReseeds        prometheus.Counter
	ActiveGuilds        prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them on reg.
// A nil registerer leaves the collectors unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TracksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tarumae",
			Name:      "tracks_started_total",
			Help:      "Tracks handed to a voice player.",
		}),
		MaterializeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarumae",
			Name:      "materialize_failures_total",
			Help:      "Failed attempts to turn a URI into a playable stream.",
		}, []string{"backend"}),
		RelayBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tarumae",
			Name:      "relay_bytes_total",
			Help:      "Bytes copied between decoder and transcoder.",
		}),
		GateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tarumae",
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for the transcoder output to fill.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Crossfades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tarumae",
			Name:      "crossfades_total",
			Help:      "Completed crossfade swaps.",
		}),
		RadioReseeds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tarumae",
			Name:      "radio_reseeds_total",
			Help:      "Recommendation process invocations.",
		}),
		ActiveGuilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tarumae",
			Name:      "active_guilds",
			Help:      "Guilds with a live voice session.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TracksStarted,
			m.MaterializeFailures,
			m.RelayBytes,
			m.GateWait,
			m.Crossfades,
			m.RadioReseeds,
			m.ActiveGuilds,
		)
	}

	return m
}

// ObserveGateWait records how long a backpressure wait took
func (m *Metrics) ObserveGateWait(d time.Duration) {
	if m == nil {
		return
	}
	m.GateWait.Observe(d.Seconds())
}

// RecordMaterializeFailure counts a failed materialization for a backend
func (m *Metrics) RecordMaterializeFailure(backend string) {
	if m == nil {
		return
	}
	m.MaterializeFailures.WithLabelValues(backend).Inc()
}

// AddRelayBytes counts bytes relayed between processes
func (m *Metrics) AddRelayBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RelayBytes.Add(float64(n))
}

// IncTracksStarted counts a track start
func (m *Metrics) IncTracksStarted() {
	if m == nil {
		return
	}
	m.TracksStarted.Inc()
}

// IncCrossfades counts a completed crossfade
func (m *Metrics) IncCrossfades() {
	if m == nil {
		return
	}
	m.Crossfades.Inc()
}

// IncRadioReseeds counts a recommender invocation
func (m *Metrics) IncRadioReseeds() {
	if m == nil {
		return
	}
	m.RadioReseeds.Inc()
}

// SetActiveGuilds records the number of live voice sessions
func (m *Metrics) SetActiveGuilds(n int) {
	if m == nil {
		return
	}
	m.ActiveGuilds.Set(float64(n))
}
