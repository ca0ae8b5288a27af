package chat

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the chat subsystem.
type Metrics struct {
	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram
	ToolCalls    prometheus.Histogram
}

// NewMetrics registers and returns chat metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_chat_turns_total",
			Help: "Total chat turns by result.",
		}, []string{"result"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_chat_turn_duration_seconds",
			Help:    "Duration of chat turns in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		ToolCalls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_chat_tool_calls",
			Help:    "Tool calls per chat turn.",
			Buckets: prometheus.LinearBuckets(0, 1, 9), // 0 .. 8
		}),
	}

	reg.MustRegister(m.TurnsTotal, m.TurnDuration, m.ToolCalls)
	return m
}

// Hooks returns chat callbacks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnTurn: func(degraded bool, toolCalls int, duration float64) {
			result := "ok"
			if degraded {
				result = "degraded"
			}
			m.TurnsTotal.WithLabelValues(result).Inc()
			m.TurnDuration.Observe(duration)
			m.ToolCalls.Observe(float64(toolCalls))
		},
	}
}
