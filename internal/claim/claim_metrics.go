package claim

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the claims subsystem.
type Metrics struct {
	TriagesTotal      *prometheus.CounterVec
	TriageDuration    *prometheus.HistogramVec
	DecisionsTotal    *prometheus.CounterVec
	OracleCallsTotal  prometheus.Counter
	OracleErrorsTotal prometheus.Counter
	OracleTokensIn    prometheus.Counter
	OracleTokensOut   prometheus.Counter
	OracleDuration    prometheus.Histogram
}

// NewMetrics registers and returns claim metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_triages_total",
			Help: "Total triage runs by outcome and risk level.",
		}, []string{"outcome", "risk"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbiter_triage_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}, []string{"outcome"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_decisions_total",
			Help: "Total human decisions by kind.",
		}, []string{"decision"}),
		OracleCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_oracle_calls_total",
			Help: "Total model provider calls.",
		}),
		OracleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_oracle_errors_total",
			Help: "Total model provider calls that failed or timed out.",
		}),
		OracleTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_oracle_tokens_input_total",
			Help: "Total model input tokens consumed.",
		}),
		OracleTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_oracle_tokens_output_total",
			Help: "Total model output tokens consumed.",
		}),
		OracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_oracle_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.DecisionsTotal,
		m.OracleCallsTotal,
		m.OracleErrorsTotal,
		m.OracleTokensIn,
		m.OracleTokensOut,
		m.OracleDuration,
	)

	return m
}

// EngineHooks returns engine callbacks that increment the corresponding
// metrics.
func (m *Metrics) EngineHooks() EngineHooks {
	return EngineHooks{
		OnOracleCall: func(inputTokens, outputTokens int, duration float64) {
			m.OracleCallsTotal.Inc()
			m.OracleTokensIn.Add(float64(inputTokens))
			m.OracleTokensOut.Add(float64(outputTokens))
			m.OracleDuration.Observe(duration)
		},
		OnOracleError: func() {
			m.OracleErrorsTotal.Inc()
		},
		OnRun: func(outcome Outcome, risk Risk, duration float64) {
			m.TriagesTotal.WithLabelValues(string(outcome), string(risk)).Inc()
			m.TriageDuration.WithLabelValues(string(outcome)).Observe(duration)
		},
	}
}

// ServiceHooks returns service callbacks that increment the corresponding
// metrics.
func (m *Metrics) ServiceHooks() ServiceHooks {
	return ServiceHooks{
		OnDecision: func(kind DecisionKind) {
			m.DecisionsTotal.WithLabelValues(string(kind)).Inc()
		},
	}
}
