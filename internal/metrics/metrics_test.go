package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func TestWorkflowMetrics(t *testing.T) {
	ObserveTransition("accept_offer", "ok")
	ObserveTransition("accept_offer", "no_offer_present")
	AddListingsCreated(2)
	AddSettledValue(420)
	SetFeedSubscribers(3)
	ObserveHTTPRequest("GET", "", 404, 5*time.Millisecond)

	family := gather(t, "agrimarket_workflow_transitions_total")
	require.NotNil(t, family)
	assert.Len(t, family.GetMetric(), 2)

	listings := gather(t, "agrimarket_harvest_listings_created_total")
	require.NotNil(t, listings)
	assert.GreaterOrEqual(t, listings.GetMetric()[0].GetCounter().GetValue(), float64(2))

	subscribers := gather(t, "agrimarket_market_feed_subscribers")
	require.NotNil(t, subscribers)
	assert.Equal(t, float64(3), subscribers.GetMetric()[0].GetGauge().GetValue())

	requests := gather(t, "agrimarket_http_request_duration_seconds")
	require.NotNil(t, requests)
	var routes []string
	for _, m := range requests.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "route" {
				routes = append(routes, label.GetValue())
			}
		}
	}
	assert.Contains(t, routes, "unmatched")
}
