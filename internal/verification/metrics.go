package verification

import "github.com/prometheus/client_golang/prometheus"

var (
	noticesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Subsystem: "verification",
		Name:      "notices_sent_total",
		Help:      "Dispute notices successfully delivered to the verifier",
	})
	noticesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Subsystem: "verification",
		Name:      "notices_failed_total",
		Help:      "Dispute notices that could not be delivered after retries",
	})
	resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ikkii",
		Subsystem: "verification",
		Name:      "resolutions_total",
		Help:      "Dispute resolutions received via the callback endpoint",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(noticesSentTotal, noticesFailedTotal, resolutionsTotal)
}
