package vstate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts machine activity across every instance sharing it.
// A nil *Metrics is valid and counts nothing, so wiring is optional.
type Metrics struct {
	Transitions prometheus.Counter
	Violations  prometheus.Counter
	Redundant   prometheus.Counter
	Dumps       prometheus.Counter
}

// NewMetrics creates and registers the counters.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Transitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "vstate_transitions_total",
			Help: "Total accepted lifecycle transitions across all machines",
		}),
		Violations: factory.NewCounter(prometheus.CounterOpts{
			Name: "vstate_violations_total",
			Help: "Total protocol violations detected",
		}),
		Redundant: factory.NewCounter(prometheus.CounterOpts{
			Name: "vstate_redundant_operations_total",
			Help: "Total tolerated redundant operations (warned, not failed)",
		}),
		Dumps: factory.NewCounter(prometheus.CounterOpts{
			Name: "vstate_history_dumps_total",
			Help: "Total transition histories dumped to the diagnostic sink",
		}),
	}
}

func (m *Metrics) transition() {
	if m == nil {
		return
	}
	m.Transitions.Inc()
}

func (m *Metrics) violation() {
	if m == nil {
		return
	}
	m.Violations.Inc()
}

func (m *Metrics) redundant() {
	if m == nil {
		return
	}
	m.Redundant.Inc()
}

func (m *Metrics) dump() {
	if m == nil {
		return
	}
	m.Dumps.Inc()
}
