package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the estimation engine. All methods are
// safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	// Registry pages requested, by building family and deal kind
	RegistryPages *prometheus.CounterVec

	// Absorbed upstream failures by stage
	UpstreamFailures *prometheus.CounterVec

	// Estimation outcomes by source
	EstimateOutcome *prometheus.CounterVec

	EstimateLatency prometheus.Histogram
}

// New registers all engine metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistryPages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safesign_registry_pages_total",
			Help: "Transaction registry pages requested",
		}, []string{"building_type", "deal_kind"}),

		UpstreamFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safesign_upstream_failures_total",
			Help: "Upstream failures absorbed without aborting an estimation",
		}, []string{"stage"}), // stage: "registry", "region_code", "geocode"

		EstimateOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safesign_estimate_outcomes_total",
			Help: "Estimation outcomes by producing stage",
		}, []string{"source"}),

		EstimateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "safesign_estimate_duration_seconds",
			Help:    "Duration of a full estimate-by-address call",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) IncRegistryPage(buildingType, dealKind string) {
	if m != nil {
		m.RegistryPages.WithLabelValues(buildingType, dealKind).Inc()
	}
}

func (m *Metrics) IncUpstreamFailure(stage string) {
	if m != nil {
		m.UpstreamFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) IncOutcome(source string) {
	if m != nil {
		m.EstimateOutcome.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) ObserveEstimate(d time.Duration) {
	if m != nil {
		m.EstimateLatency.Observe(d.Seconds())
	}
}
