package download

import "github.com/prometheus/client_golang/prometheus"

var (
	bytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxkey",
			Subsystem: "download",
			Name:      "bytes_received_total",
			Help:      "Bytes received from the remote file source",
		},
	)

	filesAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxkey",
			Subsystem: "download",
			Name:      "files_accepted_total",
			Help:      "Manifest files validated and moved into place",
		},
		[]string{"model"},
	)

	filesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxkey",
			Subsystem: "download",
			Name:      "files_rejected_total",
			Help:      "Manifest file transfers that failed or were rejected",
		},
		[]string{"model", "reason"},
	)

	packageAcquireSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "voxkey",
			Subsystem: "download",
			Name:      "package_acquire_seconds",
			Help:      "Duration of package backend acquisitions",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(bytesReceivedTotal, filesAcceptedTotal, filesRejectedTotal, packageAcquireSeconds)
}
