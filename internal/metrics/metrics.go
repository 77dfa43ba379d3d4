package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	bidsPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bids",
			Name:      "placed_total",
			Help:      "Bid placement attempts by outcome.",
		},
		[]string{"outcome"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "listings",
			Name:      "closed_total",
			Help:      "Listings closed by outcome.",
		},
		[]string{"outcome"},
	)

	schedulerRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of settlement scheduler cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	settlementFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "scheduler",
			Name:      "settlement_failures_total",
			Help:      "Settlement attempts that returned an error.",
		},
	)

	operatorAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "scheduler",
			Name:      "operator_alerts_total",
			Help:      "Listings that kept failing settlement past the alert threshold.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		bidsPlaced,
		settlements,
		schedulerRunDuration,
		settlementFailures,
		operatorAlerts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one handled request. path should be the route
// template, not the raw URL, to keep label cardinality bounded.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBid counts a bid attempt; outcome is "admitted" or the rejection code
func RecordBid(outcome string) {
	bidsPlaced.WithLabelValues(outcome).Inc()
}

// RecordSettlement counts a listing closing with the given outcome
func RecordSettlement(outcome string) {
	settlements.WithLabelValues(outcome).Inc()
}

func ObserveSchedulerRun(duration time.Duration) {
	schedulerRunDuration.Observe(duration.Seconds())
}

func RecordSettlementFailure() {
	settlementFailures.Inc()
}

func RecordOperatorAlert() {
	operatorAlerts.Inc()
}
