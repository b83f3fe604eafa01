package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AvailabilityChecks *prometheus.CounterVec
	Purchases          *prometheus.CounterVec
	SessionResets      *prometheus.CounterVec
	RateLookups        *prometheus.CounterVec
	Resumptions        *prometheus.CounterVec
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AvailabilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opns_availability_checks_total",
			Help: "Availability lookups by resolved status",
		}, []string{"status"}),
		Purchases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opns_purchases_total",
			Help: "Purchase attempts by rail and outcome",
		}, []string{"rail", "outcome"}),
		SessionResets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opns_wallet_session_resets_total",
			Help: "Wallet session resets by reason",
		}, []string{"reason"}),
		RateLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opns_exchange_rate_lookups_total",
			Help: "Exchange rate lookups by source",
		}, []string{"source"}),
		Resumptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opns_checkout_resumptions_total",
			Help: "Hosted checkout returns by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementAvailabilityCheck(status string) {
	if m == nil {
		return
	}
	m.AvailabilityChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementPurchase(rail, outcome string) {
	if m == nil {
		return
	}
	m.Purchases.WithLabelValues(rail, outcome).Inc()
}

func (m *Metrics) IncrementSessionReset(reason string) {
	if m == nil {
		return
	}
	m.SessionResets.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementRateLookup(source string) {
	if m == nil {
		return
	}
	m.RateLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementResumption(outcome string) {
	if m == nil {
		return
	}
	m.Resumptions.WithLabelValues(outcome).Inc()
}
