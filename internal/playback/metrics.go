package playback

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports playback transitions to Prometheus. Subscribe
// Observe to a manager to feed it.
type Metrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	phase       prometheus.Gauge
}

// NewMetrics creates the playback collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radyo_playback_transitions_total",
				Help: "Committed playback phase transitions, by target phase.",
			},
			[]string{"phase"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radyo_playback_failures_total",
				Help: "Playback failures, by error kind.",
			},
			[]string{"kind"},
		),
		phase: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "radyo_playback_phase",
				Help: "Current playback phase (0 idle, 1 loading, 2 playing, 3 paused, 4 stopped, 5 failed).",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.transitions, m.failures, m.phase} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register playback metrics: %w", err)
		}
	}

	return m, nil
}

// Observe records one committed snapshot
func (m *Metrics) Observe(snap Snapshot) {
	m.transitions.WithLabelValues(snap.Phase.String()).Inc()
	m.phase.Set(float64(snap.Phase))
	if snap.Phase == PhaseFailed && snap.LastError != nil {
		m.failures.WithLabelValues(snap.LastError.Kind.String()).Inc()
	}
}
