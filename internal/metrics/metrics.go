// Package metrics exposes the trading decision core's observability surface
// as real prometheus collectors: claim, veto, aggregation, risk, state
// transition/rejection and execution-outcome counters, aggregation and
// execution latency histograms, and active witness/user gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds every metric the decision core emits. Construct one with
// NewCollectors and register it with a prometheus.Registerer at startup.
type Collectors struct {
	ClaimsEmitted      *prometheus.CounterVec
	ClaimsInvalid      prometheus.Counter
	VetoesTriggered    *prometheus.CounterVec
	Aggregations       *prometheus.CounterVec
	AggregatorLatency  prometheus.Histogram
	RiskDenials        *prometheus.CounterVec
	RiskEvaluations    prometheus.Counter
	StateTransitions   *prometheus.CounterVec
	StateRejections    *prometheus.CounterVec
	ExecutionOutcomes  *prometheus.CounterVec
	ExecutionLatency   prometheus.Histogram
	ActiveWitnesses    *prometheus.GaugeVec
	ActiveUsers        prometheus.Gauge
}

// NewCollectors builds every collector, unregistered. Register separately so
// tests can construct a Collectors without touching the default registry.
func NewCollectors() *Collectors {
	return &Collectors{
		ClaimsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "witness",
			Name:      "claims_emitted_total",
			Help:      "Claims emitted by the witness panel, by tier and claim type.",
		}, []string{"tier", "claim_type"}),
		ClaimsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "witness",
			Name:      "claims_invalid_total",
			Help:      "Claims dropped for expiry or tier/claim-type mismatch.",
		}),
		VetoesTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "aggregator",
			Name:      "vetoes_total",
			Help:      "T3 veto claims that short-circuited aggregation, by witness id.",
		}, []string{"witness_id"}),
		Aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "aggregator",
			Name:      "resolutions_total",
			Help:      "Aggregator resolutions, by resolution reason.",
		}, []string{"reason"}),
		AggregatorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tradingcore",
			Subsystem: "aggregator",
			Name:      "resolve_duration_seconds",
			Help:      "Time to resolve one bar's claim set into an aggregated result.",
			Buckets:   prometheus.DefBuckets,
		}),
		RiskDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "risk",
			Name:      "denials_total",
			Help:      "Risk engine denials, by resulting level.",
		}, []string{"level"}),
		RiskEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "risk",
			Name:      "evaluations_total",
			Help:      "Total risk engine evaluations performed.",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "statemachine",
			Name:      "transitions_total",
			Help:      "Accepted state transitions, by from/to pair.",
		}, []string{"from", "to"}),
		StateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "statemachine",
			Name:      "rejections_total",
			Help:      "Rejected state transition attempts, by from/to pair.",
		}, []string{"from", "to"}),
		ExecutionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "executor",
			Name:      "outcomes_total",
			Help:      "Per-user execution outcomes, by status.",
		}, []string{"status"}),
		ExecutionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tradingcore",
			Subsystem: "executor",
			Name:      "fanout_duration_seconds",
			Help:      "Time to fan one authorized decision out across all users.",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveWitnesses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tradingcore",
			Subsystem: "witness",
			Name:      "active",
			Help:      "Currently ACTIVE witness count, by tier.",
		}, []string{"tier"}),
		ActiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tradingcore",
			Subsystem: "executor",
			Name:      "active_users",
			Help:      "Currently registered, non-removed user contexts.",
		}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate registration (mirroring prometheus's own MustRegister contract).
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.ClaimsEmitted,
		c.ClaimsInvalid,
		c.VetoesTriggered,
		c.Aggregations,
		c.AggregatorLatency,
		c.RiskDenials,
		c.RiskEvaluations,
		c.StateTransitions,
		c.StateRejections,
		c.ExecutionOutcomes,
		c.ExecutionLatency,
		c.ActiveWitnesses,
		c.ActiveUsers,
	)
}
