package deliver

import (
	"github.com/prometheus/client_golang/prometheus"
)

var deliveryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "comfyd",
		Subsystem: "delivery",
		Name:      "total",
		Help:      "Delivery records by outcome tier",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(deliveryTotal)
}
