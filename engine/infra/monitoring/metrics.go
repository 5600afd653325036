package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Page fetch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeStale   = "stale"
)

// Mutation outcomes.
const (
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport"
)

// Metrics aggregates the engine counters. A nil *Metrics is valid and records
// nothing, so wiring observability stays optional for embedders.
type Metrics struct {
	pagesFetched *prometheus.CounterVec
	prefetchHits prometheus.Counter
	mutations    *prometheus.CounterVec
	rollbacks    prometheus.Counter
}

// NewMetrics registers the engine counters with reg. Passing nil yields
// unregistered (test-only) collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userdesk",
			Name:      "pages_fetched_total",
			Help:      "Page fetches by outcome (success, failure, stale).",
		}, []string{"outcome"}),
		prefetchHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "userdesk",
			Name:      "prefetch_hits_total",
			Help:      "Page loads served from a speculative prefetch.",
		}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userdesk",
			Name:      "mutations_total",
			Help:      "Settled mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "userdesk",
			Name:      "rollbacks_total",
			Help:      "Optimistic mutations rolled back after a failure.",
		}),
	}
}

func (m *Metrics) ObservePage(outcome string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePrefetchHit() {
	if m == nil {
		return
	}
	m.prefetchHits.Inc()
}

func (m *Metrics) ObserveMutation(kind, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}
