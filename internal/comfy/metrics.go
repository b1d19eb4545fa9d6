package comfy

import (
	"github.com/prometheus/client_golang/prometheus"
)

var engineStartsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "comfyd",
		Subsystem: "engine",
		Name:      "starts_total",
		Help:      "Engine processes spawned, including respawns",
	},
)

func init() {
	prometheus.MustRegister(engineStartsTotal)
}
