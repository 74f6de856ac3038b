package coordinator

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the n_sources/n_apps gauges. They are registered with the
// Registerer passed to New; a nil Registerer skips registration, which is how
// several coordinators (tests in particular) coexist in one process.
type metrics struct {
	sources prometheus.Gauge
	apps    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "camstream",
			Name:      "n_sources",
			Help:      "Number of tracked video sources, including reclaimable ones awaiting sweep.",
		}),
		apps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "camstream",
			Name:      "n_apps",
			Help:      "Number of active AppWorkers dispatched by the coordinator.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sources, m.apps)
	}
	return m
}
