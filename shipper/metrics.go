package shipper

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	submittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trailship_records_submitted_total",
		Help: "Records accepted into the delivery queue.",
	})
	deliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trailship_records_delivered_total",
		Help: "Records written to the collector.",
	})
	droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trailship_records_dropped_total",
		Help: "Records given up on, by reason.",
	}, []string{"reason"})
	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trailship_send_retries_total",
		Help: "Send attempts that failed and were retried.",
	})
	reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trailship_connects_total",
		Help: "Connections established to the collector.",
	})
)

func init() {
	prometheus.MustRegister(submittedTotal, deliveredTotal, droppedTotal, retriesTotal, reconnectsTotal)
}
