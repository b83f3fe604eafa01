package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementPurchase("marketplace", "succeeded")
	m.IncrementPurchase("marketplace", "succeeded")
	m.IncrementSessionReset("unauthorized")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Purchases.WithLabelValues("marketplace", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionResets.WithLabelValues("unauthorized")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementAvailabilityCheck("available")
		m.IncrementPurchase("direct_wallet", "failed")
		m.IncrementSessionReset("signed_out")
		m.IncrementRateLookup("cache")
		m.IncrementResumption("completed")
	})
}
