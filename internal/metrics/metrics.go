// Package metrics defines the Prometheus collectors shared by the server and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cashflow"

// Metrics groups every collector. The zero registry is allowed: collectors still
// count, they are just not exported.
type Metrics struct {
	PostingsCreated prometheus.Counter
	PublishFailures prometheus.Counter
	ProjectedEvents *prometheus.CounterVec
	ApplyFailures   prometheus.Counter
	BalanceQueries  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PostingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_created_total",
			Help:      "Postings durably stored by the ingestion service.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posting_publish_failures_total",
			Help:      "Stored postings whose event could not be published.",
		}),
		ProjectedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projector_events_total",
			Help:      "Posting events handled by the balance projector, by outcome.",
		}, []string{"outcome"}),
		ApplyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projector_apply_failures_total",
			Help:      "Failed attempts to apply an event to the balance cache.",
		}),
		BalanceQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_queries_total",
			Help:      "Balance queries, by cache result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PostingsCreated,
			m.PublishFailures,
			m.ProjectedEvents,
			m.ApplyFailures,
			m.BalanceQueries,
		)
	}
	return m
}
