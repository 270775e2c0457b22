package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	workflowTransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrimarket",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Counter of transaction workflow operations by outcome.",
		}, []string{"operation", "outcome"})

	listingsCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agrimarket",
			Subsystem: "harvest",
			Name:      "listings_created_total",
			Help:      "Counter of transactions created by the harvest sweep.",
		})

	settledValueCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agrimarket",
			Subsystem: "workflow",
			Name:      "settled_value_total",
			Help:      "Sum of accepted purchase prices.",
		})

	feedSubscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agrimarket",
			Subsystem: "market_feed",
			Name:      "subscribers",
			Help:      "Number of connected market feed subscribers.",
		})

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agrimarket",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Bucketed histogram of HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(workflowTransitionCounter)
	prometheus.MustRegister(listingsCreatedCounter)
	prometheus.MustRegister(settledValueCounter)
	prometheus.MustRegister(feedSubscribersGauge)
	prometheus.MustRegister(httpRequestDuration)
}

// ObserveTransition counts a workflow operation with its outcome code
func ObserveTransition(operation, outcome string) {
	workflowTransitionCounter.WithLabelValues(operation, outcome).Inc()
}

// AddListingsCreated counts transactions opened by a harvest sweep
func AddListingsCreated(n int) {
	listingsCreatedCounter.Add(float64(n))
}

// AddSettledValue accumulates an accepted purchase price
func AddSettledValue(price int64) {
	settledValueCounter.Add(float64(price))
}

// SetFeedSubscribers reports the current market feed audience
func SetFeedSubscribers(n int) {
	feedSubscribersGauge.Set(float64(n))
}

// ObserveHTTPRequest records one handled request
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
