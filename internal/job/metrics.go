package job

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfyd",
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Jobs by terminal status",
		},
		[]string{"status", "workflow"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "comfyd",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "End-to-end job execution time in seconds",
			// Generation jobs run seconds to minutes.
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"workflow"},
	)

	jobsBusyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "comfyd",
			Subsystem: "jobs",
			Name:      "busy_total",
			Help:      "Jobs rejected because the slot stayed occupied",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, jobDuration, jobsBusyTotal)
}
