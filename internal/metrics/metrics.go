package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitesync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	updatesSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sitesync",
			Name:      "updates_synced_total",
			Help:      "Milestone updates accepted by the remote.",
		},
	)

	updatesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sitesync",
			Name:      "updates_failed_total",
			Help:      "Milestone updates that exhausted retries or hit unknown errors.",
		},
	)

	serverWins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sitesync",
			Name:      "server_wins_total",
			Help:      "Local updates discarded after a remote conflict.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sitesync",
			Name:      "queue_depth",
			Help:      "Pending updates in the offline queue.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, updatesSynced, updatesFailed, serverWins, queueDepth)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSynced()      { updatesSynced.Inc() }
func IncFailed()      { updatesFailed.Inc() }
func IncServerWins()  { serverWins.Inc() }
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }
