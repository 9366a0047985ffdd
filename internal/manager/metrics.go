package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "voxkey",
			Subsystem: "manager",
			Name:      "downloads_inflight",
			Help:      "Downloaders currently running",
		},
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxkey",
			Subsystem: "manager",
			Name:      "downloads_total",
			Help:      "Finished download sessions by backend kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(downloadsInFlight, downloadsTotal)
}
